package schedule

import "fmt"

// TaskError reports a task that returned an error or panicked.
type TaskError struct {
	Doc      string
	Version  int32
	Err      error
	Panicked bool
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("analyze %s v%d: %v", e.Doc, e.Version, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

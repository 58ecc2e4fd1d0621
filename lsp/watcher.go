package lsp

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// IncludeWatcher watches the files a document includes and reports the
// documents affected when one of them is created, written, removed or
// renamed. Directories are watched rather than files so that an include
// that does not exist yet is noticed when it appears.
type IncludeWatcher struct {
	fs       *fsnotify.Watcher
	onChange func(docs []string)

	mu         sync.Mutex
	dependents map[string]map[string]bool // include path -> documents
	includes   map[string][]string        // document -> include paths
	dirs       map[string]int
}

func NewIncludeWatcher(onChange func(docs []string)) (*IncludeWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &IncludeWatcher{
		fs:         fs,
		onChange:   onChange,
		dependents: make(map[string]map[string]bool),
		includes:   make(map[string][]string),
		dirs:       make(map[string]int),
	}, nil
}

// Track replaces the set of files doc includes.
func (w *IncludeWatcher) Track(doc string, includes []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.untrackLocked(doc)
	if len(includes) == 0 {
		return
	}
	w.includes[doc] = includes
	for _, inc := range includes {
		deps := w.dependents[inc]
		if deps == nil {
			deps = make(map[string]bool)
			w.dependents[inc] = deps
		}
		deps[doc] = true

		dir := filepath.Dir(inc)
		if w.dirs[dir] == 0 {
			if err := w.fs.Add(dir); err != nil {
				log.Debugf("watch %s: %s", dir, err)
			}
		}
		w.dirs[dir]++
	}
}

func (w *IncludeWatcher) Untrack(doc string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.untrackLocked(doc)
}

func (w *IncludeWatcher) untrackLocked(doc string) {
	for _, inc := range w.includes[doc] {
		if deps := w.dependents[inc]; deps != nil {
			delete(deps, doc)
			if len(deps) == 0 {
				delete(w.dependents, inc)
			}
		}
		dir := filepath.Dir(inc)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			if err := w.fs.Remove(dir); err != nil {
				log.Debugf("unwatch %s: %s", dir, err)
			}
		}
	}
	delete(w.includes, doc)
}

// Dependents returns the documents that include path, sorted.
func (w *IncludeWatcher) Dependents(path string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	deps := w.dependents[filepath.Clean(path)]
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Run delivers change notifications until ctx is done or the watcher is
// closed.
func (w *IncludeWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if docs := w.Dependents(ev.Name); len(docs) > 0 {
				log.Debugf("%s changed, reanalyzing %d documents", ev.Name, len(docs))
				w.onChange(docs)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warningf("include watcher: %s", err)
		}
	}
}

func (w *IncludeWatcher) Close() error {
	return w.fs.Close()
}

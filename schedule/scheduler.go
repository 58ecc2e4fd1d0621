// Package schedule runs per-document analysis tasks with debouncing, a fixed
// number of concurrency slots and coalesced reruns.
//
// Each document moves through these states:
//
//	Idle -> Scheduled (debounce pending) -> Waiting (for a slot) -> Running
//	Running -> Idle | RerunPending
//	RerunPending -> Waiting (when the in-flight run completes)
//
// A document never runs twice at the same time. Any number of Schedule calls
// that arrive while it runs collapse into a single rerun of the latest
// request once the current run has finished.
package schedule

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("thriftls.schedule")

const (
	DefaultConcurrency = 3
	DefaultDebounce    = 300 * time.Millisecond
)

type State int

const (
	Idle State = iota
	Scheduled
	Waiting
	Running
	RerunPending
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case RerunPending:
		return "rerun-pending"
	default:
		return "idle"
	}
}

// ThrottleState is what the caller observed about the document's analysis
// when it decided to schedule.
type ThrottleState struct {
	IsAnalyzing    bool
	VersionAtStart int32
}

type Request struct {
	Version   int32
	Immediate bool
	Throttle  *ThrottleState
}

// Task performs one analysis. The context is canceled when the scheduler is
// disposed; the scheduler never interrupts a task on its own.
type Task func(ctx context.Context) error

// Completion receives the task's outcome. Failures arrive as *TaskError.
type Completion func(err error)

type Options struct {
	Concurrency int           `json:"concurrency"`
	Debounce    time.Duration `json:"debounce"`
}

type pending struct {
	version    int32
	task       Task
	onComplete Completion
}

type docState struct {
	timer    *time.Timer
	timerGen uint64
	next     *pending
	waiting  bool
	running  bool
	rerun    *pending
}

func (d *docState) idle() bool {
	return d.timer == nil && !d.waiting && !d.running && d.rerun == nil
}

type Scheduler struct {
	mu       sync.Mutex
	opts     Options
	docs     map[string]*docState
	queue    []string
	active   int
	disposed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:   opts,
		docs:   make(map[string]*docState),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) docLocked(doc string) *docState {
	d, ok := s.docs[doc]
	if !ok {
		d = &docState{}
		s.docs[doc] = d
	}
	return d
}

// Schedule requests an analysis of doc. It returns false when the request is
// rejected: the scheduler was disposed, task is nil, or the throttle state
// shows a run already covering this version.
func (s *Scheduler) Schedule(doc string, req Request, task Task, onComplete Completion) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || task == nil {
		return false
	}
	if th := req.Throttle; th != nil && th.IsAnalyzing && req.Version <= th.VersionAtStart {
		log.Debugf("%s v%d already being analyzed at v%d", doc, req.Version, th.VersionAtStart)
		return false
	}

	d := s.docLocked(doc)
	p := &pending{version: req.Version, task: task, onComplete: onComplete}

	switch {
	case d.running:
		s.stopTimerLocked(d)
		d.next = nil
		d.rerun = p
		log.Debugf("%s v%d: rerun owed", doc, req.Version)
	case d.waiting:
		d.next = p
	case req.Immediate || s.opts.Debounce == 0:
		s.stopTimerLocked(d)
		d.next = p
		s.enqueueLocked(doc, d)
		s.dispatchLocked()
	default:
		d.next = p
		s.stopTimerLocked(d)
		d.timerGen++
		gen := d.timerGen
		d.timer = time.AfterFunc(s.opts.Debounce, func() { s.fire(doc, gen) })
	}
	return true
}

func (s *Scheduler) stopTimerLocked(d *docState) {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (s *Scheduler) fire(doc string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[doc]
	if !ok || s.disposed || d.timer == nil || d.timerGen != gen {
		return
	}
	d.timer = nil
	if d.next == nil {
		return
	}
	if d.running {
		d.rerun, d.next = d.next, nil
		return
	}
	s.enqueueLocked(doc, d)
	s.dispatchLocked()
}

func (s *Scheduler) enqueueLocked(doc string, d *docState) {
	if d.waiting {
		return
	}
	d.waiting = true
	s.queue = append(s.queue, doc)
}

func (s *Scheduler) dispatchLocked() {
	for s.active < s.opts.Concurrency && len(s.queue) > 0 {
		doc := s.queue[0]
		s.queue = s.queue[1:]

		d, ok := s.docs[doc]
		if !ok || !d.waiting || d.next == nil {
			continue
		}
		p := d.next
		d.next = nil
		d.waiting = false
		d.running = true
		s.active++
		s.wg.Add(1)
		log.Debugf("%s v%d: running (%d/%d slots)", doc, p.version, s.active, s.opts.Concurrency)
		go s.run(doc, p)
	}
}

func (s *Scheduler) run(doc string, p *pending) {
	defer s.wg.Done()

	err := s.execute(doc, p)
	if err != nil {
		log.Errorf("%s", err)
	}
	if p.onComplete != nil {
		s.complete(doc, p, err)
	}
	s.finish(doc)
}

func (s *Scheduler) execute(doc string, p *pending) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{Doc: doc, Version: p.version, Err: fmt.Errorf("panic: %v", r), Panicked: true}
		}
	}()
	if taskErr := p.task(s.ctx); taskErr != nil {
		return &TaskError{Doc: doc, Version: p.version, Err: taskErr}
	}
	return nil
}

func (s *Scheduler) complete(doc string, p *pending, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s v%d: completion callback panicked: %v", doc, p.version, r)
		}
	}()
	p.onComplete(err)
}

func (s *Scheduler) finish(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active--
	d, ok := s.docs[doc]
	if ok {
		d.running = false
		if d.rerun != nil && !s.disposed {
			d.next, d.rerun = d.rerun, nil
			log.Debugf("%s v%d: rerunning", doc, d.next.version)
			s.enqueueLocked(doc, d)
		}
		if d.idle() {
			delete(s.docs, doc)
		}
	}
	s.dispatchLocked()
}

// Cancel drops the document's pending debounce, queued request and owed
// rerun. A run that already holds a slot is left to finish.
func (s *Scheduler) Cancel(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[doc]
	if !ok {
		return
	}
	s.stopTimerLocked(d)
	d.next = nil
	d.rerun = nil
	if d.waiting {
		d.waiting = false
		s.queue = slices.DeleteFunc(s.queue, func(q string) bool { return q == doc })
	}
	if d.idle() {
		delete(s.docs, doc)
	}
	log.Debugf("%s: canceled", doc)
}

// QueuedCount returns how many documents wait for a free slot or for a rerun.
func (s *Scheduler) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	for _, d := range s.docs {
		if d.rerun != nil {
			n++
		}
	}
	return n
}

// RunningCount returns how many slots are in use.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) State(doc string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[doc]
	switch {
	case !ok:
		return Idle
	case d.running && d.rerun != nil:
		return RerunPending
	case d.running:
		return Running
	case d.waiting:
		return Waiting
	case d.timer != nil:
		return Scheduled
	}
	return Idle
}

// Dispose stops all timers and drops all pending work. Running tasks see
// their context canceled; Wait blocks until they return.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	for _, d := range s.docs {
		s.stopTimerLocked(d)
		d.next = nil
		d.rerun = nil
		d.waiting = false
	}
	s.queue = nil
	s.cancel()
	log.Debug("scheduler disposed")
}

// Wait blocks until no task is running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

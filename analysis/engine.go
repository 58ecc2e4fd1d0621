// Package analysis owns every long-lived piece of the language service: the
// memory monitor, the cache manager with its AST and format caches, the
// dirty-line tracker and the analysis scheduler. One Engine is built per
// server process and handed to whoever needs it.
package analysis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/dhamidi/thriftls/astcache"
	"github.com/dhamidi/thriftls/cache"
	"github.com/dhamidi/thriftls/config"
	"github.com/dhamidi/thriftls/dirty"
	"github.com/dhamidi/thriftls/memory"
	"github.com/dhamidi/thriftls/schedule"
	"github.com/dhamidi/thriftls/thrift/parser"
)

var log = commonlog.GetLogger("thriftls.analysis")

type Option func(*options)

type options struct {
	sampler  memory.Sampler
	clock    func() time.Time
	stat     func(path string) error
	observer Observer
}

// Observer is told about every finished analysis and how long it took.
type Observer func(res *Result, elapsed time.Duration)

func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithSampler replaces the heap sampler of the memory monitor.
func WithSampler(s memory.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithClock sets the clock used for cache expiry and memory readings.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithStat replaces the file existence check used for include diagnostics.
func WithStat(stat func(path string) error) Option {
	return func(o *options) {
		o.stat = stat
	}
}

func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}

// Stats counts what Analyze did since the engine was built.
type Stats struct {
	Analyses      int64
	FullParses    int64
	DocumentHits  int64
	RegionsParsed int64
	RegionsReused int64
}

type Engine struct {
	Monitor   *memory.Monitor
	Manager   *cache.Manager
	ASTs      *astcache.Cache[*parser.Node]
	Dirty     *dirty.Tracker
	Scheduler *schedule.Scheduler

	cfg      config.Config
	stat     func(path string) error
	observer Observer

	mu        sync.Mutex
	analyzing map[string]int32

	analyses      atomic.Int64
	fullParses    atomic.Int64
	documentHits  atomic.Int64
	regionsParsed atomic.Int64
	regionsReused atomic.Int64

	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: time.Now, stat: statFile}
	for _, opt := range opts {
		opt(&o)
	}

	monOpts := cfg.MemoryOptions()
	monOpts.Sampler = o.sampler
	monOpts.Clock = o.clock
	monitor := memory.New(monOpts)
	manager := cache.NewManager(monitor, cfg.PressureThresholds(), cache.WithManagerClock(o.clock))

	astOpts := cfg.ASTOptions()
	astOpts.Clock = o.clock
	asts, err := astcache.New[*parser.Node](manager, astOpts)
	if err != nil {
		return nil, fmt.Errorf("ast cache: %w", err)
	}
	fmtOpts := cfg.FormatCacheOptions()
	fmtOpts.Clock = o.clock
	if err := manager.RegisterCache(FormatCacheName, fmtOpts); err != nil {
		return nil, fmt.Errorf("format cache: %w", err)
	}

	return &Engine{
		Monitor:   monitor,
		Manager:   manager,
		ASTs:      asts,
		Dirty:     dirty.NewTracker(cfg.MaxDirtyLines),
		Scheduler: schedule.New(cfg.SchedulerOptions()),
		cfg:       cfg,
		stat:      o.stat,
		observer:  o.observer,
		analyzing: make(map[string]int32),
	}, nil
}

func (e *Engine) Config() config.Config {
	return e.cfg
}

// Start runs the periodic memory pressure check and the AST expiry sweep
// until ctx is done or Close is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	e.group = g

	interval := e.cfg.Memory.CheckInterval.Std()
	g.Go(func() error {
		e.Manager.Run(ctx, interval)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := e.ASTs.ClearExpired(); n > 0 {
					log.Debugf("expired %d ast entries", n)
				}
			}
		}
	})
	log.Infof("engine started (check interval %s)", interval)
}

// Close stops background work and disposes the scheduler. Running analyses
// see their context canceled.
func (e *Engine) Close() {
	e.Scheduler.Dispose()
	if e.cancel != nil {
		e.cancel()
		e.group.Wait()
	}
	e.Scheduler.Wait()
}

// Forget drops everything cached or pending for doc.
func (e *Engine) Forget(doc string) {
	e.Scheduler.Cancel(doc)
	e.Dirty.Clear(doc)
	e.ASTs.ClearForDocument(doc)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Analyses:      e.analyses.Load(),
		FullParses:    e.fullParses.Load(),
		DocumentHits:  e.documentHits.Load(),
		RegionsParsed: e.regionsParsed.Load(),
		RegionsReused: e.regionsReused.Load(),
	}
}

// Source returns the current text and version of a document, or false when
// the document is no longer open.
type Source func(doc string) (content string, version int32, ok bool)

// Schedule queues an analysis of doc. The task reads the document through
// src when it runs, so a coalesced rerun sees the newest text. publish is
// called with each successful result.
func (e *Engine) Schedule(doc string, version int32, immediate bool, src Source, publish func(*Result)) bool {
	req := schedule.Request{
		Version:   version,
		Immediate: immediate,
		Throttle:  e.throttle(doc),
	}
	task := func(ctx context.Context) error {
		content, v, ok := src(doc)
		if !ok {
			return nil
		}
		e.begin(doc, v)
		defer e.end(doc)

		res, err := e.Analyze(ctx, doc, content)
		if err != nil {
			return err
		}
		res.Version = v
		if publish != nil {
			publish(res)
		}
		return nil
	}
	return e.Scheduler.Schedule(doc, req, task, func(err error) {
		if err != nil {
			log.Warningf("analysis of %s failed: %s", doc, err)
		}
	})
}

func (e *Engine) throttle(doc string) *schedule.ThrottleState {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.analyzing[doc]
	if !ok {
		return nil
	}
	return &schedule.ThrottleState{IsAnalyzing: true, VersionAtStart: v}
}

func (e *Engine) begin(doc string, version int32) {
	e.mu.Lock()
	e.analyzing[doc] = version
	e.mu.Unlock()
}

func (e *Engine) end(doc string) {
	e.mu.Lock()
	delete(e.analyzing, doc)
	e.mu.Unlock()
}

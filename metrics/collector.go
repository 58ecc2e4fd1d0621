// Package metrics exports the engine's cache, memory and scheduler state as
// Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/thriftls/analysis"
)

var log = commonlog.GetLogger("thriftls.metrics")

const namespace = "thriftls"

var (
	cacheEntries   = desc("cache", "entries", "Entries held by a cache.", "cache")
	cacheLimit     = desc("cache", "limit", "Current entry limit of a cache after pressure adjustments.", "cache")
	cacheHits      = desc("cache", "hits_total", "Cache lookups that found a live entry.", "cache")
	cacheMisses    = desc("cache", "misses_total", "Cache lookups that found nothing usable.", "cache")
	cacheEvictions = desc("cache", "evictions_total", "Entries evicted to make room.", "cache")
	cacheBytes     = desc("cache", "estimated_bytes", "Estimated memory held by a cache.", "cache")

	memoryUsage    = desc("memory", "usage_bytes", "Last sampled heap usage.")
	memoryPeak     = desc("memory", "peak_bytes", "Highest sampled heap usage.")
	memoryBudget   = desc("memory", "budget_bytes", "Configured memory budget.")
	memoryPressure = desc("memory", "pressure_level", "Memory pressure level: 0 normal, 1 medium, 2 high.")

	analyses      = desc("analysis", "runs_total", "Analyses started.")
	fullParses    = desc("analysis", "full_parses_total", "Whole-document parses.")
	documentHits  = desc("analysis", "document_hits_total", "Analyses served from the document tree cache.")
	regionsParsed = desc("analysis", "regions_parsed_total", "Definition regions parsed.")
	regionsReused = desc("analysis", "regions_reused_total", "Definition regions reused from cache.")

	queued  = desc("scheduler", "queued", "Analyses waiting for a slot or owed as reruns.")
	running = desc("scheduler", "running", "Analyses currently running.")
)

func desc(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

// Collector reads engine state on every scrape. The engine is looked up
// each time since the language server rebuilds it when settings change; a
// nil engine collects nothing.
type Collector struct {
	engine func() *analysis.Engine
}

func NewCollector(engine func() *analysis.Engine) *Collector {
	return &Collector{engine: engine}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		cacheEntries, cacheLimit, cacheHits, cacheMisses, cacheEvictions, cacheBytes,
		memoryUsage, memoryPeak, memoryBudget, memoryPressure,
		analyses, fullParses, documentHits, regionsParsed, regionsReused,
		queued, running,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	e := c.engine()
	if e == nil {
		return
	}
	for _, s := range e.Manager.AllStats() {
		ch <- prometheus.MustNewConstMetric(cacheEntries, prometheus.GaugeValue, float64(s.Size), s.Name)
		ch <- prometheus.MustNewConstMetric(cacheLimit, prometheus.GaugeValue, float64(s.Limit), s.Name)
		ch <- prometheus.MustNewConstMetric(cacheHits, prometheus.CounterValue, float64(s.Hits), s.Name)
		ch <- prometheus.MustNewConstMetric(cacheMisses, prometheus.CounterValue, float64(s.Misses), s.Name)
		ch <- prometheus.MustNewConstMetric(cacheEvictions, prometheus.CounterValue, float64(s.Evictions), s.Name)
		ch <- prometheus.MustNewConstMetric(cacheBytes, prometheus.GaugeValue, float64(s.EstimatedMemory), s.Name)
	}

	ch <- prometheus.MustNewConstMetric(memoryUsage, prometheus.GaugeValue, float64(e.Monitor.CurrentUsage()))
	ch <- prometheus.MustNewConstMetric(memoryPeak, prometheus.GaugeValue, float64(e.Monitor.PeakUsage()))
	ch <- prometheus.MustNewConstMetric(memoryBudget, prometheus.GaugeValue, float64(e.Monitor.Budget()))
	ch <- prometheus.MustNewConstMetric(memoryPressure, prometheus.GaugeValue, float64(e.Manager.MemoryPressureLevel()))

	st := e.Stats()
	ch <- prometheus.MustNewConstMetric(analyses, prometheus.CounterValue, float64(st.Analyses))
	ch <- prometheus.MustNewConstMetric(fullParses, prometheus.CounterValue, float64(st.FullParses))
	ch <- prometheus.MustNewConstMetric(documentHits, prometheus.CounterValue, float64(st.DocumentHits))
	ch <- prometheus.MustNewConstMetric(regionsParsed, prometheus.CounterValue, float64(st.RegionsParsed))
	ch <- prometheus.MustNewConstMetric(regionsReused, prometheus.CounterValue, float64(st.RegionsReused))

	ch <- prometheus.MustNewConstMetric(queued, prometheus.GaugeValue, float64(e.Scheduler.QueuedCount()))
	ch <- prometheus.MustNewConstMetric(running, prometheus.GaugeValue, float64(e.Scheduler.RunningCount()))
}

// Recorder counts finished analyses by how their tree was obtained and
// times them.
type Recorder struct {
	results  *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "results_total",
			Help:      "Finished analyses by mode: full, incremental or cached.",
		}, []string{"mode"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Time spent in a single analysis.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

// Observe matches analysis.Observer.
func (r *Recorder) Observe(res *analysis.Result, elapsed time.Duration) {
	r.results.WithLabelValues(Mode(res)).Inc()
	r.duration.Observe(elapsed.Seconds())
}

func Mode(res *analysis.Result) string {
	switch {
	case res.Cached:
		return "cached"
	case res.Incremental:
		return "incremental"
	default:
		return "full"
	}
}

// NewRegistry returns a registry with the Go runtime collector and a Recorder
// registered. The engine collector is added with Register.
func NewRegistry() (*prometheus.Registry, *Recorder) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg, NewRecorder(reg)
}

func Register(reg prometheus.Registerer, engine func() *analysis.Engine) error {
	return reg.Register(NewCollector(engine))
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Serve runs an HTTP server for h on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("serving http on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

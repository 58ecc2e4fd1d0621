// Package memory samples process memory use and turns the samples into
// pressure signals, forecasts and tuning hints for the analysis caches.
package memory

import (
	"iter"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dhamidi/thriftls/cache"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("thriftls.memory")

const (
	DefaultHistorySize = 120
	DefaultBudget      = 1 << 30

	trendWindow = 10
	// relative change between the two halves of the trend window that
	// counts as growth or shrinkage
	trendSensitivity = 0.05
)

type Reading struct {
	Timestamp time.Time
	Bytes     uint64
}

// TrendPoint is one element of TrendData.
type TrendPoint struct {
	Op        string    `json:"op"`
	Value     uint64    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type Stability string

const (
	Increasing Stability = "increasing"
	Decreasing Stability = "decreasing"
	Stable     Stability = "stable"
)

type Trend struct {
	Stability      Stability
	BytesPerSecond float64
}

// Sampler returns the number of bytes currently in use.
type Sampler func() uint64

// HeapSampler reports live heap bytes.
func HeapSampler() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

type Options struct {
	HistorySize int
	Budget      uint64
	Sampler     Sampler
	Clock       func() time.Time
}

// Monitor keeps a bounded history of memory readings.
type Monitor struct {
	mu      sync.Mutex
	opts    Options
	history []Reading
	peak    uint64
	caches  map[string]cache.Stats
}

func New(opts Options) *Monitor {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Budget == 0 {
		opts.Budget = DefaultBudget
	}
	if opts.Sampler == nil {
		opts.Sampler = HeapSampler
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Monitor{
		opts:   opts,
		caches: make(map[string]cache.Stats),
	}
}

// RecordUsage takes a sample, appends it to the history and updates the peak.
func (m *Monitor) RecordUsage() Reading {
	r := Reading{Timestamp: m.opts.Clock(), Bytes: m.opts.Sampler()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == m.opts.HistorySize {
		copy(m.history, m.history[1:])
		m.history = m.history[:len(m.history)-1]
	}
	m.history = append(m.history, r)
	if r.Bytes > m.peak {
		m.peak = r.Bytes
	}
	return r
}

// CurrentUsage returns the most recent reading, or 0 before the first one.
func (m *Monitor) CurrentUsage() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

func (m *Monitor) currentLocked() uint64 {
	if len(m.history) == 0 {
		return 0
	}
	return m.history[len(m.history)-1].Bytes
}

func (m *Monitor) PeakUsage() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func (m *Monitor) Budget() uint64 {
	return m.opts.Budget
}

// UsageRatio returns the current usage as a fraction of the budget.
func (m *Monitor) UsageRatio() float64 {
	return float64(m.CurrentUsage()) / float64(m.opts.Budget)
}

// SampleRatio records a reading and returns its usage ratio.
func (m *Monitor) SampleRatio() float64 {
	r := m.RecordUsage()
	return float64(r.Bytes) / float64(m.opts.Budget)
}

// IsHighUsage reports whether current usage is at or above fraction of the
// budget.
func (m *Monitor) IsHighUsage(fraction float64) bool {
	return m.UsageRatio() >= fraction
}

// TrendData yields the recorded history, oldest first. Each iteration walks
// a snapshot taken when it starts, so the sequence can be ranged over again.
func (m *Monitor) TrendData() iter.Seq[TrendPoint] {
	return func(yield func(TrendPoint) bool) {
		m.mu.Lock()
		history := append([]Reading(nil), m.history...)
		m.mu.Unlock()

		for _, r := range history {
			if !yield(TrendPoint{Op: "memory-usage", Value: r.Bytes, Timestamp: r.Timestamp}) {
				return
			}
		}
	}
}

// Trend compares the older and newer halves of the most recent readings.
func (m *Monitor) Trend() Trend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trendLocked()
}

func (m *Monitor) trendLocked() Trend {
	recent := m.history
	if len(recent) > trendWindow {
		recent = recent[len(recent)-trendWindow:]
	}
	if len(recent) < 2 {
		return Trend{Stability: Stable}
	}

	half := len(recent) / 2
	older, newer := mean(recent[:half]), mean(recent[len(recent)-half:])

	var rate float64
	first, last := recent[0], recent[len(recent)-1]
	if elapsed := last.Timestamp.Sub(first.Timestamp).Seconds(); elapsed > 0 {
		rate = (float64(last.Bytes) - float64(first.Bytes)) / elapsed
	}

	stability := Stable
	if older > 0 {
		switch change := (newer - older) / older; {
		case change > trendSensitivity:
			stability = Increasing
		case change < -trendSensitivity:
			stability = Decreasing
		}
	}
	return Trend{Stability: stability, BytesPerSecond: rate}
}

func mean(readings []Reading) float64 {
	var sum float64
	for _, r := range readings {
		sum += float64(r.Bytes)
	}
	return sum / float64(len(readings))
}

// Predict extrapolates usage window into the future from the current trend.
func (m *Monitor) Predict(window time.Duration) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := float64(m.currentLocked())
	predicted := current + m.trendLocked().BytesPerSecond*window.Seconds()
	if predicted < 0 {
		return 0
	}
	return uint64(predicted)
}

// UpdateCacheStats records the latest stats a cache reported about itself.
func (m *Monitor) UpdateCacheStats(name string, stats cache.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats.Name = name
	m.caches[name] = stats
}

// AllCacheStats returns reported cache stats sorted by name.
func (m *Monitor) AllCacheStats() []cache.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheStatsLocked()
}

func (m *Monitor) cacheStatsLocked() []cache.Stats {
	all := make([]cache.Stats, 0, len(m.caches))
	for _, s := range m.caches {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// ClearHistory drops all readings and resets the peak.
func (m *Monitor) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	m.peak = 0
	log.Debug("memory history cleared")
}

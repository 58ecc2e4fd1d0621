package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("thriftls.cache")

// ErrUnknownCache is returned when an operation names a cache that was never
// registered.
var ErrUnknownCache = errors.New("unknown cache")

// Monitor is the view of process memory a Manager needs.
type Monitor interface {
	// UsageRatio returns the last recorded usage as a fraction of the budget.
	UsageRatio() float64
	// SampleRatio records a new reading and returns its usage ratio.
	SampleRatio() float64
	UpdateCacheStats(name string, stats Stats)
}

// Stats describe one named cache.
type Stats struct {
	Name            string    `json:"name"`
	Size            int       `json:"size"`
	MaxSize         int       `json:"maxSize"`
	Limit           int       `json:"limit"`
	Hits            uint64    `json:"hits"`
	Misses          uint64    `json:"misses"`
	HitRate         float64   `json:"hitRate"`
	Evictions       uint64    `json:"evictions"`
	EstimatedMemory int       `json:"estimatedMemory"`
	CleanupCount    int       `json:"cleanupCount"`
	LastCleanup     time.Time `json:"lastCleanup"`
}

type managed struct {
	cache  *Cache[string, any]
	hits   atomic.Uint64
	misses atomic.Uint64

	mu           sync.Mutex
	cleanupCount int
	lastCleanup  time.Time
}

func (m *managed) recordCleanup(now time.Time) {
	m.mu.Lock()
	m.cleanupCount++
	m.lastCleanup = now
	m.mu.Unlock()
}

func (m *managed) stats(name string) Stats {
	hits, misses := m.hits.Load(), m.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	m.mu.Lock()
	cleanups, last := m.cleanupCount, m.lastCleanup
	m.mu.Unlock()
	return Stats{
		Name:            name,
		Size:            m.cache.Size(),
		MaxSize:         m.cache.MaxSize(),
		Limit:           m.cache.Limit(),
		Hits:            hits,
		Misses:          misses,
		HitRate:         rate,
		Evictions:       m.cache.Evictions(),
		EstimatedMemory: m.cache.EstimatedMemory(),
		CleanupCount:    cleanups,
		LastCleanup:     last,
	}
}

// Manager is a registry of named caches that reacts to memory pressure.
type Manager struct {
	mu       sync.RWMutex
	caches   map[string]*managed
	monitor  Monitor
	pressure PressureThresholds
	clock    Clock

	checkMu   sync.Mutex
	level     PressureLevel
	lastCheck time.Time
}

type ManagerOption func(*Manager)

// WithManagerClock sets the clock used to rate-limit pressure checks and to
// stamp cleanups.
func WithManagerClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a manager. A nil monitor disables pressure handling.
func NewManager(monitor Monitor, pressure PressureThresholds, opts ...ManagerOption) *Manager {
	m := &Manager{
		caches:   make(map[string]*managed),
		monitor:  monitor,
		pressure: pressure.withDefaults(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterCache creates the named cache, replacing any cache registered under
// the same name.
func (m *Manager) RegisterCache(name string, opts Options) error {
	c, err := New[string, any](opts, nil)
	if err != nil {
		return fmt.Errorf("register cache %q: %w", name, err)
	}

	m.mu.Lock()
	_, replaced := m.caches[name]
	m.caches[name] = &managed{cache: c}
	m.mu.Unlock()

	if replaced {
		log.Infof("replaced cache %q (maxSize=%d)", name, opts.MaxSize)
	} else {
		log.Debugf("registered cache %q (maxSize=%d)", name, opts.MaxSize)
	}
	return nil
}

func (m *Manager) lookup(name string) *managed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caches[name]
}

func (m *Manager) snapshot() map[string]*managed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*managed, len(m.caches))
	for name, c := range m.caches {
		out[name] = c
	}
	return out
}

// Get looks key up in the named cache. Unknown caches behave like misses.
func (m *Manager) Get(name, key string) (any, bool) {
	return m.GetIf(name, key, nil)
}

// GetIf is like Get but only counts a stored value as a hit when match
// accepts it. A nil match accepts everything.
func (m *Manager) GetIf(name, key string, match func(value any) bool) (any, bool) {
	c := m.lookup(name)
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if ok && match != nil && !match(v) {
		v, ok = nil, false
	}
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value in the named cache.
func (m *Manager) Set(name, key string, value any) error {
	c := m.lookup(name)
	if c == nil {
		return fmt.Errorf("set %q: %w", name, ErrUnknownCache)
	}
	c.cache.Set(key, value)
	m.maybeCheckPressure()
	return nil
}

func (m *Manager) Delete(name, key string) bool {
	c := m.lookup(name)
	if c == nil {
		return false
	}
	return c.cache.Delete(key)
}

// DeleteFunc removes matching entries from the named cache.
func (m *Manager) DeleteFunc(name string, pred func(key string, value any) bool) int {
	c := m.lookup(name)
	if c == nil {
		return 0
	}
	return c.cache.DeleteFunc(pred)
}

// Names returns the registered cache names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (m *Manager) Stats(name string) (Stats, bool) {
	c := m.lookup(name)
	if c == nil {
		return Stats{}, false
	}
	return c.stats(name), true
}

// AllStats returns stats for every registered cache, sorted by name.
func (m *Manager) AllStats() []Stats {
	var all []Stats
	for name, c := range m.snapshot() {
		all = append(all, c.stats(name))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Clear empties the named cache and resets its hit and miss counters.
func (m *Manager) Clear(name string) {
	c := m.lookup(name)
	if c == nil {
		return
	}
	c.cache.Clear()
	c.hits.Store(0)
	c.misses.Store(0)
}

func (m *Manager) ClearAll() {
	for name := range m.snapshot() {
		m.Clear(name)
	}
}

// MemoryPressureLevel classifies the monitor's last reading.
func (m *Manager) MemoryPressureLevel() PressureLevel {
	if m.monitor == nil {
		return PressureNormal
	}
	return m.pressure.classify(m.monitor.UsageRatio())
}

func (m *Manager) maybeCheckPressure() {
	now := m.clock()
	m.checkMu.Lock()
	due := now.Sub(m.lastCheck) >= m.pressure.CheckInterval
	if due {
		// claim the slot so concurrent writers skip this round
		m.lastCheck = now
	}
	m.checkMu.Unlock()
	if due {
		m.CheckPressure()
	}
}

// CheckPressure samples memory and adjusts every registered cache: high
// pressure purges expired entries and shrinks each cache to
// HighPressureFactor of its capacity, medium pressure purges expired entries,
// and normal pressure restores full capacity. Stats are published to the
// monitor afterwards.
func (m *Manager) CheckPressure() PressureLevel {
	now := m.clock()

	var ratio float64
	if m.monitor != nil {
		ratio = m.monitor.SampleRatio()
	}
	level := m.pressure.classify(ratio)

	m.checkMu.Lock()
	prev := m.level
	m.level = level
	m.lastCheck = now
	m.checkMu.Unlock()

	if level != prev {
		switch level {
		case PressureHigh:
			log.Warningf("memory pressure high (%.0f%% of budget), shrinking caches", ratio*100)
		default:
			log.Noticef("memory pressure %s (%.0f%% of budget)", level, ratio*100)
		}
	}

	caches := m.snapshot()
	for name, c := range caches {
		switch level {
		case PressureHigh:
			purged := c.cache.PurgeExpired()
			limit := int(float64(c.cache.MaxSize()) * m.pressure.HighPressureFactor)
			evicted := c.cache.SetLimit(limit)
			c.recordCleanup(now)
			log.Debugf("cache %q: purged %d expired, evicted %d, limit %d", name, purged, evicted, c.cache.Limit())
		case PressureMedium:
			purged := c.cache.PurgeExpired()
			c.cache.SetLimit(c.cache.MaxSize())
			c.recordCleanup(now)
			log.Debugf("cache %q: purged %d expired", name, purged)
		default:
			if c.cache.Limit() < c.cache.MaxSize() {
				c.cache.SetLimit(c.cache.MaxSize())
				log.Debugf("cache %q: limit restored to %d", name, c.cache.MaxSize())
			}
		}
	}

	if m.monitor != nil {
		for name, c := range caches {
			m.monitor.UpdateCacheStats(name, c.stats(name))
		}
	}
	return level
}

// Run checks memory pressure every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckPressure()
		}
	}
}

package cache

import (
	"math"
	"sort"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	size       int
	seq        uint64

	// ring of the last K access times; next is the slot to overwrite, which
	// is also the oldest access once the ring is full.
	accesses []time.Time
	next     int
	count    int
}

func (e *entry[K, V]) touch(now time.Time) {
	e.accesses[e.next] = now
	e.next = (e.next + 1) % len(e.accesses)
	if e.count < len(e.accesses) {
		e.count++
	}
}

// score returns the K-th most recent access time. Entries with fewer than K
// accesses score the zero time and are evicted first.
func (e *entry[K, V]) score() time.Time {
	if e.count < len(e.accesses) {
		return time.Time{}
	}
	return e.accesses[e.next]
}

// Cache is a thread-safe bounded cache with LRU-K eviction and lazy TTL
// expiration.
type Cache[K comparable, V any] struct {
	mu        sync.Mutex
	opts      Options
	limit     int
	estimate  SizeEstimator[K, V]
	entries   map[K]*entry[K, V]
	seq       uint64
	evictions uint64
}

// New creates a cache. A nil estimator selects DefaultSizeEstimator.
func New[K comparable, V any](opts Options, estimate SizeEstimator[K, V]) (*Cache[K, V], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if estimate == nil {
		estimate = DefaultSizeEstimator[K, V]
	}
	return &Cache[K, V]{
		opts:     opts,
		limit:    opts.MaxSize,
		estimate: estimate,
		entries:  make(map[K]*entry[K, V]),
	}, nil
}

// Set stores value under key. Inserting a new key first evicts entries while
// the cache is at or above its eviction threshold.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Clock()
	if e, ok := c.entries[key]; ok {
		if !c.expiredLocked(e, now) {
			e.value = value
			e.insertedAt = now
			e.size = c.estimate(key, value)
			e.touch(now)
			return
		}
		delete(c.entries, key)
	}

	threshold := float64(c.limit) * c.opts.EvictionThreshold
	if float64(len(c.entries)) >= threshold {
		c.removeExpiredLocked(now)
		c.trimLocked(int(math.Ceil(threshold)) - 1)
	}

	c.seq++
	e := &entry[K, V]{
		key:        key,
		value:      value,
		insertedAt: now,
		size:       c.estimate(key, value),
		seq:        c.seq,
		accesses:   make([]time.Time, c.opts.LRUK),
	}
	e.touch(now)
	c.entries[key] = e
}

// Get returns the value stored under key. An expired entry is removed and
// reported as missing.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	now := c.opts.Clock()
	if c.expiredLocked(e, now) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	e.touch(now)
	return e.value, true
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeleteFunc removes every entry for which pred returns true and returns how
// many were removed.
func (c *Cache[K, V]) DeleteFunc(pred func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if pred(key, e.value) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[K, V])
}

// Size returns the number of live entries.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeExpiredLocked(c.opts.Clock())
	return len(c.entries)
}

// EstimatedMemory sums the estimated size of all live entries.
func (c *Cache[K, V]) EstimatedMemory() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeExpiredLocked(c.opts.Clock())
	total := 0
	for _, e := range c.entries {
		total += e.size
	}
	return total
}

// Keys returns the keys of all live entries in no particular order.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeExpiredLocked(c.opts.Clock())
	keys := make([]K, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// PurgeExpired removes all expired entries and returns how many there were.
func (c *Cache[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(c.opts.Clock())
}

// SetLimit sets the effective capacity, clamped to [1, MaxSize], evicting
// entries that no longer fit. It returns the number of evicted entries.
func (c *Cache[K, V]) SetLimit(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n = max(1, min(n, c.opts.MaxSize))
	c.limit = n
	return c.trimLocked(n)
}

// Limit returns the effective capacity.
func (c *Cache[K, V]) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// MaxSize returns the configured capacity.
func (c *Cache[K, V]) MaxSize() int {
	return c.opts.MaxSize
}

// Evictions returns how many entries were evicted to make room since the
// cache was created.
func (c *Cache[K, V]) Evictions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *Cache[K, V]) expiredLocked(e *entry[K, V], now time.Time) bool {
	return c.opts.TTL > 0 && now.Sub(e.insertedAt) > c.opts.TTL
}

func (c *Cache[K, V]) removeExpiredLocked(now time.Time) int {
	if c.opts.TTL <= 0 {
		return 0
	}
	removed := 0
	for key, e := range c.entries {
		if c.expiredLocked(e, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// trimLocked evicts the lowest scoring entries until at most keep remain.
// Equal scores are broken by insertion order, oldest first.
func (c *Cache[K, V]) trimLocked(keep int) int {
	excess := len(c.entries) - max(keep, 0)
	if excess <= 0 {
		return 0
	}

	victims := make([]*entry[K, V], 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		si, sj := victims[i].score(), victims[j].score()
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return victims[i].seq < victims[j].seq
	})

	for _, e := range victims[:excess] {
		delete(c.entries, e.key)
	}
	c.evictions += uint64(excess)
	return excess
}

// Package cache provides the bounded key/value store used for every piece of
// re-derivable analysis state, and the named registry that owns those stores.
//
// # Bounded caches
//
// A Cache ranks entries with LRU-K: each entry remembers its last K access
// times and the K-th most recent one is its eviction score. Entries that have
// been touched fewer than K times score as maximally evictable, so a file
// that was parsed once and never looked at again goes before one that is
// re-read on every keystroke, even if the latter is colder overall.
//
//	c, err := cache.New[string, *parser.Node](cache.Options{
//	    MaxSize: 200,
//	    TTL:     5 * time.Minute,
//	    LRUK:    2,
//	}, nil)
//
// Eviction runs synchronously inside Set once the cache holds
// MaxSize*EvictionThreshold entries and stops as soon as it is below that
// mark again, which leaves headroom so that not every insert evicts.
// Expiration is lazy: Get drops an entry whose TTL has elapsed, and Size and
// EstimatedMemory never count expired entries.
//
// # Manager
//
// A Manager is a registry of named caches holding arbitrary values. It keeps
// per-cache hit and miss counters and consults a Monitor to classify memory
// pressure. Under high pressure it lowers the effective capacity of every
// registered cache at once, since no single cache can see process-wide
// memory use on its own.
package cache

package cache

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultLRUK              = 2
	DefaultEvictionThreshold = 0.8
)

// ErrInvalidOptions is returned when a cache is configured with options that
// cannot describe a working cache.
var ErrInvalidOptions = errors.New("invalid cache options")

// Clock returns the current time. Caches take one so tests can move time
// forward without sleeping.
type Clock func() time.Time

// Options configure a Cache.
//
// Zero values pick defaults: LRUK 2, EvictionThreshold 0.8, no expiry and the
// wall clock. MaxSize has no default and must be positive.
type Options struct {
	MaxSize           int           `json:"maxSize"`
	TTL               time.Duration `json:"ttl"`
	LRUK              int           `json:"lruK"`
	EvictionThreshold float64       `json:"evictionThreshold"`
	Clock             Clock         `json:"-"`
}

func (o Options) withDefaults() Options {
	if o.LRUK == 0 {
		o.LRUK = DefaultLRUK
	}
	if o.EvictionThreshold == 0 {
		o.EvictionThreshold = DefaultEvictionThreshold
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Validate reports whether the options describe a usable cache. Unset fields
// are validated after defaults are applied.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch {
	case o.MaxSize <= 0:
		return fmt.Errorf("%w: maxSize must be positive, got %d", ErrInvalidOptions, o.MaxSize)
	case o.TTL < 0:
		return fmt.Errorf("%w: ttl must not be negative, got %s", ErrInvalidOptions, o.TTL)
	case o.LRUK < 1:
		return fmt.Errorf("%w: lruK must be at least 1, got %d", ErrInvalidOptions, o.LRUK)
	case o.EvictionThreshold <= 0 || o.EvictionThreshold > 1:
		return fmt.Errorf("%w: evictionThreshold must be in (0, 1], got %g", ErrInvalidOptions, o.EvictionThreshold)
	}
	return nil
}

// SizeEstimator approximates how many bytes an entry occupies.
type SizeEstimator[K comparable, V any] func(key K, value V) int

// Sizer is implemented by values that know their own approximate size.
type Sizer interface {
	Size() int
}

const entryOverhead = 64

// DefaultSizeEstimator counts string and byte slice lengths, asks values
// implementing Sizer, and charges a fixed overhead for everything else.
func DefaultSizeEstimator[K comparable, V any](key K, value V) int {
	return entryOverhead + approxSize(key) + approxSize(value)
}

func approxSize(v any) int {
	switch x := v.(type) {
	case string:
		return len(x)
	case []byte:
		return len(x)
	case Sizer:
		return x.Size()
	}
	return 0
}

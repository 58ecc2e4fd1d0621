// Package config holds the server's tunables: cache sizes and lifetimes,
// scheduling, memory budget and pressure thresholds. Settings arrive from
// command-line flags and from the editor as JSON, either as LSP
// initialization options or through workspace/didChangeConfiguration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dhamidi/thriftls/astcache"
	"github.com/dhamidi/thriftls/cache"
	"github.com/dhamidi/thriftls/dirty"
	"github.com/dhamidi/thriftls/memory"
	"github.com/dhamidi/thriftls/schedule"
)

// Section is the key editors nest thriftls settings under.
const Section = "thrift"

var ErrInvalidConfig = errors.New("invalid configuration")

// Duration decodes from a Go duration string ("300ms") or a number of
// milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("duration must be a string or milliseconds, got %s", data)
	}
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type AST struct {
	TTL          Duration `json:"ttl"`
	MaxDocuments int      `json:"maxDocuments"`
	MaxRegions   int      `json:"maxRegions"`
	LRUK         int      `json:"lruK"`
}

type Cache struct {
	MaxSize           int      `json:"maxSize"`
	TTL               Duration `json:"ttl"`
	LRUK              int      `json:"lruK"`
	EvictionThreshold float64  `json:"evictionThreshold"`
}

type Scheduler struct {
	Concurrency int      `json:"concurrency"`
	Debounce    Duration `json:"debounce"`
}

type Memory struct {
	// Budget is the heap size, in bytes, that pressure ratios are measured
	// against.
	Budget        uint64   `json:"budget"`
	HistorySize   int      `json:"historySize"`
	CheckInterval Duration `json:"checkInterval"`
}

type Pressure struct {
	Medium             float64  `json:"medium"`
	High               float64  `json:"high"`
	HighPressureFactor float64  `json:"highPressureFactor"`
	CheckInterval      Duration `json:"checkInterval"`
}

type Config struct {
	AST           AST       `json:"ast"`
	Format        Cache     `json:"format"`
	MaxDirtyLines int       `json:"maxDirtyLines"`
	Scheduler     Scheduler `json:"scheduler"`
	Memory        Memory    `json:"memory"`
	Pressure      Pressure  `json:"pressure"`
	MetricsAddr   string    `json:"metricsAddr"`
}

func Default() Config {
	p := cache.DefaultPressureThresholds()
	return Config{
		AST: AST{
			TTL:          Duration(astcache.DefaultTTL),
			MaxDocuments: astcache.DefaultMaxDocuments,
			MaxRegions:   astcache.DefaultMaxRegions,
			LRUK:         cache.DefaultLRUK,
		},
		Format: Cache{
			MaxSize:           50,
			TTL:               Duration(10 * time.Minute),
			LRUK:              cache.DefaultLRUK,
			EvictionThreshold: cache.DefaultEvictionThreshold,
		},
		MaxDirtyLines: dirty.DefaultMaxDirtyLines,
		Scheduler: Scheduler{
			Concurrency: schedule.DefaultConcurrency,
			Debounce:    Duration(schedule.DefaultDebounce),
		},
		Memory: Memory{
			Budget:        memory.DefaultBudget,
			HistorySize:   memory.DefaultHistorySize,
			CheckInterval: Duration(30 * time.Second),
		},
		Pressure: Pressure{
			Medium:             p.Medium,
			High:               p.High,
			HighPressureFactor: p.HighPressureFactor,
			CheckInterval:      Duration(p.CheckInterval),
		},
	}
}

// Validate reports every problem with c, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.AST.TTL >= 0, "ast.ttl must not be negative")
	check(c.AST.MaxDocuments > 0, "ast.maxDocuments must be positive, got %d", c.AST.MaxDocuments)
	check(c.AST.MaxRegions > 0, "ast.maxRegions must be positive, got %d", c.AST.MaxRegions)
	check(c.AST.LRUK >= 0, "ast.lruK must not be negative, got %d", c.AST.LRUK)
	if err := c.FormatCacheOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: format: %w", ErrInvalidConfig, err))
	}
	check(c.MaxDirtyLines > 0, "maxDirtyLines must be positive, got %d", c.MaxDirtyLines)
	check(c.Scheduler.Concurrency > 0, "scheduler.concurrency must be positive, got %d", c.Scheduler.Concurrency)
	check(c.Scheduler.Debounce >= 0, "scheduler.debounce must not be negative")
	check(c.Memory.Budget > 0, "memory.budget must be positive")
	check(c.Memory.HistorySize > 0, "memory.historySize must be positive, got %d", c.Memory.HistorySize)
	check(c.Memory.CheckInterval > 0, "memory.checkInterval must be positive")
	check(c.Pressure.Medium > 0 && c.Pressure.Medium < c.Pressure.High && c.Pressure.High <= 1,
		"pressure thresholds must satisfy 0 < medium < high <= 1, got %g and %g", c.Pressure.Medium, c.Pressure.High)
	check(c.Pressure.HighPressureFactor > 0 && c.Pressure.HighPressureFactor <= 1,
		"pressure.highPressureFactor must be in (0, 1], got %g", c.Pressure.HighPressureFactor)
	check(c.Pressure.CheckInterval > 0, "pressure.checkInterval must be positive")

	return errors.Join(errs...)
}

// Decode overlays settings onto base. Settings are any JSON-shaped value,
// such as the decoded initializationOptions of an LSP request; settings
// nested under Section are unwrapped first. A nil value returns base.
func Decode(base Config, settings any) (Config, error) {
	if settings == nil {
		return base, nil
	}
	if m, ok := settings.(map[string]any); ok {
		if nested, ok := m[Section]; ok {
			settings = nested
		}
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return base, fmt.Errorf("encode settings: %w", err)
	}
	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func (c Config) ASTOptions() astcache.Options {
	return astcache.Options{
		TTL:          c.AST.TTL.Std(),
		MaxDocuments: c.AST.MaxDocuments,
		MaxRegions:   c.AST.MaxRegions,
		LRUK:         c.AST.LRUK,
	}
}

func (c Config) FormatCacheOptions() cache.Options {
	return cache.Options{
		MaxSize:           c.Format.MaxSize,
		TTL:               c.Format.TTL.Std(),
		LRUK:              c.Format.LRUK,
		EvictionThreshold: c.Format.EvictionThreshold,
	}
}

func (c Config) SchedulerOptions() schedule.Options {
	return schedule.Options{
		Concurrency: c.Scheduler.Concurrency,
		Debounce:    c.Scheduler.Debounce.Std(),
	}
}

func (c Config) MemoryOptions() memory.Options {
	return memory.Options{
		HistorySize: c.Memory.HistorySize,
		Budget:      c.Memory.Budget,
	}
}

func (c Config) PressureThresholds() cache.PressureThresholds {
	return cache.PressureThresholds{
		Medium:             c.Pressure.Medium,
		High:               c.Pressure.High,
		HighPressureFactor: c.Pressure.HighPressureFactor,
		CheckInterval:      c.Pressure.CheckInterval.Std(),
	}
}

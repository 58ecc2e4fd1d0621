package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

type Suggestion struct {
	Severity Severity
	Cache    string
	Message  string
}

const (
	highUsageFraction   = 0.85
	mediumUsageFraction = 0.70
	predictionHorizon   = 5 * time.Minute
	nearCapacity        = 0.9
	lowHitRate          = 0.5
	minLookups          = 20
)

// Suggestions returns optimization hints ordered from high to low severity.
// Hints with equal severity keep the order they were generated in: process
// wide hints first, then per-cache hints by cache name.
func (m *Monitor) Suggestions() []Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Suggestion
	current := m.currentLocked()
	ratio := float64(current) / float64(m.opts.Budget)
	budget := humanize.IBytes(m.opts.Budget)

	switch {
	case ratio >= highUsageFraction:
		out = append(out, Suggestion{
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("memory usage at %.0f%% of %s budget; reduce cache sizes or close unused documents", ratio*100, budget),
		})
	case ratio >= mediumUsageFraction:
		out = append(out, Suggestion{
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("memory usage at %.0f%% of %s budget", ratio*100, budget),
		})
	}

	trend := m.trendLocked()
	if trend.Stability == Increasing {
		predicted := float64(current) + trend.BytesPerSecond*predictionHorizon.Seconds()
		if predicted >= float64(m.opts.Budget) && ratio < highUsageFraction {
			out = append(out, Suggestion{
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("memory is predicted to exceed the %s budget within %s", budget, predictionHorizon),
			})
		} else {
			out = append(out, Suggestion{
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("memory usage is growing (%s/s)", humanize.IBytes(uint64(max(trend.BytesPerSecond, 0)))),
			})
		}
	}

	for _, s := range m.cacheStatsLocked() {
		if s.MaxSize > 0 && float64(s.Size) >= nearCapacity*float64(s.MaxSize) {
			out = append(out, Suggestion{
				Severity: SeverityMedium,
				Cache:    s.Name,
				Message:  fmt.Sprintf("cache %q is at %d of %d entries; consider raising maxSize", s.Name, s.Size, s.MaxSize),
			})
		}
		if s.Hits+s.Misses >= minLookups && s.HitRate < lowHitRate {
			out = append(out, Suggestion{
				Severity: SeverityLow,
				Cache:    s.Name,
				Message:  fmt.Sprintf("cache %q hit rate is %.0f%%; its entries are rarely reused", s.Name, s.HitRate*100),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

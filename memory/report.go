package memory

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Report renders a human readable summary of memory use, cache stats and
// suggestions.
func (m *Monitor) Report() string {
	suggestions := m.Suggestions()

	m.mu.Lock()
	current := m.currentLocked()
	peak := m.peak
	samples := len(m.history)
	trend := m.trendLocked()
	caches := m.cacheStatsLocked()
	m.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Memory report\n")
	sb.WriteString("\nCurrent usage\n")
	fmt.Fprintf(&sb, "  current: %s (%.1f%% of %s budget)\n",
		humanize.IBytes(current), float64(current)/float64(m.opts.Budget)*100, humanize.IBytes(m.opts.Budget))
	fmt.Fprintf(&sb, "  peak:    %s\n", humanize.IBytes(peak))
	fmt.Fprintf(&sb, "  trend:   %s (%s/s over %d samples)\n",
		trend.Stability, signedBytes(trend.BytesPerSecond), samples)

	if len(caches) > 0 {
		sb.WriteString("\nCaches\n")
		for _, s := range caches {
			fmt.Fprintf(&sb, "  %-16s %5d/%-5d hit rate %5.1f%%  ~%s  cleanups %d\n",
				s.Name, s.Size, s.MaxSize, s.HitRate*100, humanize.IBytes(uint64(s.EstimatedMemory)), s.CleanupCount)
		}
	}

	if len(suggestions) > 0 {
		sb.WriteString("\nSuggestions\n")
		for _, s := range suggestions {
			fmt.Fprintf(&sb, "  [%s] %s\n", s.Severity, s.Message)
		}
	}
	return sb.String()
}

func signedBytes(rate float64) string {
	if rate < 0 {
		return "-" + humanize.IBytes(uint64(-rate))
	}
	return "+" + humanize.IBytes(uint64(rate))
}

package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/dhamidi/thriftls/cache"
)

type fakeEnv struct {
	now   time.Time
	bytes uint64
}

func (e *fakeEnv) monitor(opts Options) *Monitor {
	if e.now.IsZero() {
		e.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	opts.Sampler = func() uint64 { return e.bytes }
	opts.Clock = func() time.Time { return e.now }
	return New(opts)
}

// record samples each value one second apart.
func (e *fakeEnv) record(m *Monitor, values ...uint64) {
	for _, v := range values {
		e.bytes = v
		m.RecordUsage()
		e.now = e.now.Add(time.Second)
	}
}

func TestRecordUsageTracksCurrentAndPeak(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{})
	env.record(m, 100, 500, 200)

	if got := m.CurrentUsage(); got != 200 {
		t.Errorf("CurrentUsage() = %d, want 200", got)
	}
	if got := m.PeakUsage(); got != 500 {
		t.Errorf("PeakUsage() = %d, want 500", got)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{HistorySize: 3})
	env.record(m, 1, 2, 3, 4, 5)

	var values []uint64
	for p := range m.TrendData() {
		values = append(values, p.Value)
	}
	if len(values) != 3 || values[0] != 3 || values[2] != 5 {
		t.Errorf("TrendData values = %v, want [3 4 5]", values)
	}
}

func TestTrendDataIsRestartable(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{})
	env.record(m, 10, 20)

	seq := m.TrendData()
	count := func() int {
		n := 0
		for p := range seq {
			if p.Op != "memory-usage" {
				t.Errorf("Op = %q, want memory-usage", p.Op)
			}
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 2 || b != 2 {
		t.Errorf("iterations yielded %d and %d points, want 2 and 2", a, b)
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		samples []uint64
		want    Stability
	}{
		{"no samples", nil, Stable},
		{"flat", []uint64{100, 101, 100, 99, 100, 100}, Stable},
		{"growing", []uint64{100, 120, 140, 160, 180, 200}, Increasing},
		{"shrinking", []uint64{200, 180, 160, 140, 120, 100}, Decreasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &fakeEnv{}
			m := env.monitor(Options{})
			env.record(m, tt.samples...)
			if got := m.Trend().Stability; got != tt.want {
				t.Errorf("Trend().Stability = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{})
	env.record(m, 1000, 1100, 1200, 1300)

	// 100 bytes per second from 1300.
	if got := m.Predict(10 * time.Second); got != 2300 {
		t.Errorf("Predict(10s) = %d, want 2300", got)
	}

	env.record(m, 1200, 1100, 1000, 900, 800, 700, 600, 500, 400, 300)
	if got := m.Predict(time.Hour); got != 0 {
		t.Errorf("Predict(1h) = %d for shrinking usage, want clamped to 0", got)
	}
}

func TestIsHighUsage(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{Budget: 1000})
	env.record(m, 900)

	if !m.IsHighUsage(0.85) {
		t.Error("IsHighUsage(0.85) = false at 90%")
	}
	if m.IsHighUsage(0.95) {
		t.Error("IsHighUsage(0.95) = true at 90%")
	}
}

func TestSuggestionsSortedBySeverity(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{Budget: 1000})
	env.record(m, 900)
	m.UpdateCacheStats("ast", cache.Stats{Size: 95, MaxSize: 100, Hits: 5, Misses: 45, HitRate: 0.1})

	got := m.Suggestions()
	if len(got) != 3 {
		t.Fatalf("Suggestions() returned %d hints, want 3: %+v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Severity > got[i-1].Severity {
			t.Errorf("suggestion %d severity %s after %s", i, got[i].Severity, got[i-1].Severity)
		}
	}
	if got[0].Severity != SeverityHigh || got[2].Severity != SeverityLow {
		t.Errorf("severities = %s..%s, want high..low", got[0].Severity, got[2].Severity)
	}
	if got[2].Cache != "ast" {
		t.Errorf("low severity hint cache = %q, want ast", got[2].Cache)
	}
}

func TestReportHasCurrentUsageSection(t *testing.T) {
	m := New(Options{})
	m.RecordUsage()
	m.UpdateCacheStats("ast", cache.Stats{Size: 1, MaxSize: 10})

	report := m.Report()
	if report == "" {
		t.Fatal("Report() is empty")
	}
	for _, want := range []string{"Current usage", "current:", "peak:", "ast"} {
		if !strings.Contains(report, want) {
			t.Errorf("Report() missing %q:\n%s", want, report)
		}
	}
}

func TestClearHistory(t *testing.T) {
	env := &fakeEnv{}
	m := env.monitor(Options{})
	env.record(m, 10, 20)
	m.ClearHistory()

	if m.CurrentUsage() != 0 || m.PeakUsage() != 0 {
		t.Errorf("after ClearHistory current/peak = %d/%d, want 0/0", m.CurrentUsage(), m.PeakUsage())
	}
	for range m.TrendData() {
		t.Fatal("TrendData yielded after ClearHistory")
	}
}

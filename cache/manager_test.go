package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeMonitor struct {
	mu    sync.Mutex
	ratio float64
	stats map[string]Stats
}

func (f *fakeMonitor) UsageRatio() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ratio
}

func (f *fakeMonitor) SampleRatio() float64 { return f.UsageRatio() }

func (f *fakeMonitor) UpdateCacheStats(name string, stats Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stats == nil {
		f.stats = make(map[string]Stats)
	}
	f.stats[name] = stats
}

func (f *fakeMonitor) set(ratio float64) {
	f.mu.Lock()
	f.ratio = ratio
	f.mu.Unlock()
}

func TestRegisterCacheFailsFast(t *testing.T) {
	m := NewManager(nil, PressureThresholds{})
	err := m.RegisterCache("ast", Options{MaxSize: 0})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("RegisterCache error = %v, want ErrInvalidOptions", err)
	}
	if names := m.Names(); len(names) != 0 {
		t.Errorf("Names() = %v, want none", names)
	}
}

func TestManagerProxiesAndCountsHits(t *testing.T) {
	m := NewManager(nil, PressureThresholds{})
	if err := m.RegisterCache("ast", Options{MaxSize: 10}); err != nil {
		t.Fatal(err)
	}

	if err := m.Set("ast", "a", 1); err != nil {
		t.Fatal(err)
	}
	m.Get("ast", "a")
	m.Get("ast", "a")
	m.Get("ast", "a")
	m.Get("ast", "missing")

	stats, ok := m.Stats("ast")
	if !ok {
		t.Fatal("Stats(ast) not found")
	}
	if stats.Hits != 3 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", stats.HitRate)
	}
	if stats.Size != 1 || stats.MaxSize != 10 {
		t.Errorf("Size/MaxSize = %d/%d, want 1/10", stats.Size, stats.MaxSize)
	}

	m.Clear("ast")
	stats, _ = m.Stats("ast")
	if stats.Size != 0 || stats.Hits != 0 || stats.Misses != 0 || stats.HitRate != 0 {
		t.Errorf("after Clear stats = %+v, want zeroed", stats)
	}
}

func TestManagerUnknownCache(t *testing.T) {
	m := NewManager(nil, PressureThresholds{})
	if err := m.Set("nope", "k", 1); !errors.Is(err, ErrUnknownCache) {
		t.Errorf("Set error = %v, want ErrUnknownCache", err)
	}
	if _, ok := m.Get("nope", "k"); ok {
		t.Error("Get on unknown cache hit")
	}
}

func TestMemoryPressureLevel(t *testing.T) {
	tests := []struct {
		ratio float64
		want  PressureLevel
	}{
		{0.1, PressureNormal},
		{0.69, PressureNormal},
		{0.7, PressureMedium},
		{0.84, PressureMedium},
		{0.85, PressureHigh},
		{1.2, PressureHigh},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.ratio), func(t *testing.T) {
			mon := &fakeMonitor{ratio: tt.ratio}
			m := NewManager(mon, PressureThresholds{})
			if got := m.MemoryPressureLevel(); got != tt.want {
				t.Errorf("MemoryPressureLevel() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHighPressureShrinksAllCaches(t *testing.T) {
	mon := &fakeMonitor{}
	m := NewManager(mon, PressureThresholds{})
	for _, name := range []string{"ast", "format"} {
		if err := m.RegisterCache(name, Options{MaxSize: 10, EvictionThreshold: 1}); err != nil {
			t.Fatal(err)
		}
		for i := range 8 {
			m.Set(name, fmt.Sprint(i), i)
		}
	}

	mon.set(0.9)
	if level := m.CheckPressure(); level != PressureHigh {
		t.Fatalf("CheckPressure() = %s, want high", level)
	}
	for _, s := range m.AllStats() {
		if s.Size > 5 || s.Limit != 5 {
			t.Errorf("cache %s size/limit = %d/%d, want <= 5/5", s.Name, s.Size, s.Limit)
		}
		if s.CleanupCount != 1 {
			t.Errorf("cache %s CleanupCount = %d, want 1", s.Name, s.CleanupCount)
		}
	}
	if len(mon.stats) != 2 {
		t.Errorf("monitor received stats for %d caches, want 2", len(mon.stats))
	}

	mon.set(0.2)
	m.CheckPressure()
	for _, s := range m.AllStats() {
		if s.Limit != 10 {
			t.Errorf("cache %s limit = %d after pressure dropped, want 10", s.Name, s.Limit)
		}
	}
}

func TestDeleteFuncByPrefix(t *testing.T) {
	m := NewManager(nil, PressureThresholds{})
	m.RegisterCache("ast", Options{MaxSize: 10})
	m.Set("ast", "doc1:a", 1)
	m.Set("ast", "doc1:b", 2)
	m.Set("ast", "doc2:a", 3)

	n := m.DeleteFunc("ast", func(key string, _ any) bool { return key[:4] == "doc1" })
	if n != 2 {
		t.Errorf("DeleteFunc removed %d, want 2", n)
	}
	if _, ok := m.Get("ast", "doc2:a"); !ok {
		t.Error("doc2 entry removed")
	}
}

func TestSetRateLimitsPressureChecks(t *testing.T) {
	clock := newFakeClock()
	mon := &fakeMonitor{ratio: 0.75}
	m := NewManager(mon, PressureThresholds{CheckInterval: 5 * time.Second}, WithManagerClock(clock.Now))
	if err := m.RegisterCache("ast", Options{MaxSize: 100}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set("ast", fmt.Sprint(i), i)
		}()
	}
	wg.Wait()

	cleanups := func() int {
		s, _ := m.Stats("ast")
		return s.CleanupCount
	}
	if got := cleanups(); got != 1 {
		t.Errorf("CleanupCount after concurrent sets = %d, want 1", got)
	}

	clock.Advance(time.Second)
	m.Set("ast", "early", 0)
	if got := cleanups(); got != 1 {
		t.Errorf("CleanupCount before interval elapsed = %d, want 1", got)
	}

	clock.Advance(5 * time.Second)
	m.Set("ast", "late", 0)
	if got := cleanups(); got != 2 {
		t.Errorf("CleanupCount after interval = %d, want 2", got)
	}
	if s, _ := m.Stats("ast"); !s.LastCleanup.Equal(clock.Now()) {
		t.Errorf("LastCleanup = %v, want %v", s.LastCleanup, clock.Now())
	}
}

package cache

import "time"

type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureMedium
	PressureHigh
)

func (l PressureLevel) String() string {
	switch l {
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	default:
		return "normal"
	}
}

// PressureThresholds classify memory usage, as a fraction of the monitor's
// budget, into pressure levels.
type PressureThresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`

	// HighPressureFactor is the fraction of MaxSize every cache is shrunk to
	// while pressure is high.
	HighPressureFactor float64 `json:"highPressureFactor"`

	// CheckInterval rate-limits pressure checks triggered by Set.
	CheckInterval time.Duration `json:"checkInterval"`
}

func DefaultPressureThresholds() PressureThresholds {
	return PressureThresholds{
		Medium:             0.70,
		High:               0.85,
		HighPressureFactor: 0.5,
		CheckInterval:      5 * time.Second,
	}
}

func (t PressureThresholds) withDefaults() PressureThresholds {
	d := DefaultPressureThresholds()
	if t.Medium == 0 {
		t.Medium = d.Medium
	}
	if t.High == 0 {
		t.High = d.High
	}
	if t.HighPressureFactor == 0 {
		t.HighPressureFactor = d.HighPressureFactor
	}
	if t.CheckInterval == 0 {
		t.CheckInterval = d.CheckInterval
	}
	return t
}

func (t PressureThresholds) classify(ratio float64) PressureLevel {
	switch {
	case ratio >= t.High:
		return PressureHigh
	case ratio >= t.Medium:
		return PressureMedium
	default:
		return PressureNormal
	}
}

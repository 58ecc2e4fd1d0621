package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhamidi/thriftls/config"
)

// engineFlags are the engine settings shared by commands that build one.
type engineFlags struct {
	concurrency   int
	debounce      time.Duration
	maxDirtyLines int
	memoryBudget  string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	def := config.Default()
	cmd.Flags().IntVar(&f.concurrency, "concurrency", def.Scheduler.Concurrency, "number of analyses that may run at once")
	cmd.Flags().DurationVar(&f.debounce, "debounce", def.Scheduler.Debounce.Std(), "delay before analyzing a changed document")
	cmd.Flags().IntVar(&f.maxDirtyLines, "max-dirty-lines", def.MaxDirtyLines, "changed lines above which a document is reparsed whole")
	cmd.Flags().StringVar(&f.memoryBudget, "memory-budget", humanize.IBytes(def.Memory.Budget), "heap budget that memory pressure is measured against")
}

func (f *engineFlags) config() (config.Config, error) {
	cfg := config.Default()
	cfg.Scheduler.Concurrency = f.concurrency
	cfg.Scheduler.Debounce = config.Duration(f.debounce)
	cfg.MaxDirtyLines = f.maxDirtyLines
	budget, err := humanize.ParseBytes(f.memoryBudget)
	if err != nil {
		return cfg, fmt.Errorf("parse --memory-budget: %w", err)
	}
	cfg.Memory.Budget = budget
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/dirty"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(18)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// replayStats summarizes a replay.
type replayStats struct {
	Steps       int
	Incremental int
	Elapsed     time.Duration
	Diagnostics int
}

func newReplayCmd() *cobra.Command {
	var flags engineFlags
	var step int

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Type a .thrift file into the analysis engine and report cache behavior",
		Long: `Replay a .thrift file through the analysis engine as if it were typed
in, adding a few lines at a time, then print the engine's counters, cache
statistics and memory report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if step < 1 {
				return fmt.Errorf("--step must be at least 1, got %d", step)
			}
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			doc, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			e, err := analysis.New(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := replay(cmd.Context(), e, doc, string(data), step)
			if err != nil {
				return err
			}
			fmt.Println(renderReplay(doc, stats, e))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&step, "step", 1, "lines added per analysis")

	return cmd
}

// replay grows the document step lines at a time, marking only the new lines
// dirty, and analyzes every intermediate version.
func replay(ctx context.Context, e *analysis.Engine, doc, content string, step int) (replayStats, error) {
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var stats replayStats
	start := time.Now()
	for n := 0; n < len(lines); n += step {
		end := min(n+step, len(lines))
		e.Dirty.MarkChanges(doc, []dirty.Change{{StartLine: n, EndLine: end - 1}})
		res, err := e.Analyze(ctx, doc, strings.Join(lines[:end], ""))
		if err != nil {
			return stats, fmt.Errorf("analyze %d lines: %w", end, err)
		}
		stats.Steps++
		if res.Incremental {
			stats.Incremental++
		}
		stats.Diagnostics = len(res.Diagnostics)
		e.Manager.CheckPressure()
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

func renderReplay(doc string, stats replayStats, e *analysis.Engine) string {
	counters := e.Stats()
	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	var perStep time.Duration
	if stats.Steps > 0 {
		perStep = stats.Elapsed / time.Duration(stats.Steps)
	}

	summary := strings.Join([]string{
		row("steps", humanize.Comma(int64(stats.Steps))),
		row("incremental", humanize.Comma(int64(stats.Incremental))),
		row("full parses", humanize.Comma(counters.FullParses)),
		row("document hits", humanize.Comma(counters.DocumentHits)),
		row("regions parsed", humanize.Comma(counters.RegionsParsed)),
		row("regions reused", humanize.Comma(counters.RegionsReused)),
		row("elapsed", fmt.Sprintf("%s (%s per step)", stats.Elapsed.Round(time.Microsecond), perStep.Round(time.Microsecond))),
		row("diagnostics", humanize.Comma(int64(stats.Diagnostics))),
	}, "\n")

	var caches []string
	for _, s := range e.Manager.AllStats() {
		caches = append(caches, fmt.Sprintf("%-18s %5d/%-5d hits %-6s misses %-6s evicted %-6s ~%s",
			s.Name, s.Size, s.Limit,
			humanize.Comma(int64(s.Hits)), humanize.Comma(int64(s.Misses)),
			humanize.Comma(int64(s.Evictions)), humanize.IBytes(uint64(s.EstimatedMemory))))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("replay of "+filepath.Base(doc)),
		panelStyle.Render(summary),
		panelStyle.Render(strings.Join(caches, "\n")),
		panelStyle.Render(strings.TrimRight(e.Monitor.Report(), "\n")),
	)
}

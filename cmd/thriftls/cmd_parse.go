package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/thrift/parser"
)

type parsed struct {
	File        string                `json:"file"`
	AST         *parser.Node          `json:"ast"`
	Diagnostics []analysis.Diagnostic `json:"diagnostics,omitempty"`
}

func newParseCmd() *cobra.Command {
	var outputFormat string
	var includeComments bool
	var includePositions bool

	cmd := &cobra.Command{
		Use:   "parse <file>...",
		Short: "Parse .thrift files and dump their syntax trees",
		Long: `Parse one or more .thrift files and dump their syntax trees.

Files are parsed in parallel; output keeps the order of the arguments.
The command fails if any file has syntax errors.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]parsed, len(args))

			g := new(errgroup.Group)
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, filename := range args {
				g.Go(func() error {
					data, err := os.ReadFile(filename)
					if err != nil {
						return fmt.Errorf("read file: %w", err)
					}
					opts := []parser.Option{parser.WithFile(filename)}
					if includeComments {
						opts = append(opts, parser.WithComments())
					}
					tree := parser.Parse(string(data), opts...)
					results[i] = parsed{File: filename, AST: tree, Diagnostics: syntaxDiagnostics(tree)}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			switch outputFormat {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return fmt.Errorf("encode json: %w", err)
				}
			case "tree":
				for _, r := range results {
					fmt.Printf("# %s\n", r.File)
					if includePositions {
						fmt.Println(r.AST.StringWithPositions())
					} else {
						fmt.Println(r.AST.String())
					}
				}
			default:
				return fmt.Errorf("unknown format: %s", outputFormat)
			}

			errors := 0
			for _, r := range results {
				for _, d := range r.Diagnostics {
					fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", r.File, d.Range.Start.Line+1, d.Range.Start.Character+1, d.Message)
					errors++
				}
			}
			if errors > 0 {
				return fmt.Errorf("%d syntax errors", errors)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "output format (json, tree)")
	cmd.Flags().BoolVar(&includeComments, "comments", false, "keep comments while parsing")
	cmd.Flags().BoolVar(&includePositions, "positions", true, "include positions in tree output")

	return cmd
}

func syntaxDiagnostics(tree *parser.Node) []analysis.Diagnostic {
	var diags []analysis.Diagnostic
	for _, n := range tree.Errors() {
		msg := "syntax error"
		if n.Error != nil {
			msg = n.Error.Message
		}
		diags = append(diags, analysis.Diagnostic{
			Range:    analysis.SpanRange(n.Span),
			Severity: analysis.SeverityError,
			Code:     analysis.CodeSyntax,
			Message:  msg,
		})
	}
	return diags
}

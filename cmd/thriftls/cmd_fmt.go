package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/thriftls/thrift/format"
)

func newFmtCmd() *cobra.Command {
	var fmtOverwrite bool
	var fmtList bool
	var indent int

	cmd := &cobra.Command{
		Use:   "fmt [file]...",
		Short: "Re-indent .thrift files",
		Long: `Re-indent .thrift files and print the result to stdout.

If no file is provided, reads Thrift source from stdin.

Use -w to overwrite files in place and -l to only list the files whose
formatting differs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []format.Option{format.WithIndent(strings.Repeat(" ", indent))}

			if len(args) == 0 {
				if fmtOverwrite || fmtList {
					return fmt.Errorf("-w and -l require file arguments")
				}
				source, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				return format.NewPrinter(os.Stdout, opts...).Print(source)
			}

			for _, filename := range args {
				if ext := filepath.Ext(filename); ext != ".thrift" {
					return fmt.Errorf("expected .thrift file, got %s", ext)
				}
				source, err := os.ReadFile(filename)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				output := format.Source(string(source), opts...)

				switch {
				case fmtList:
					if output != string(source) {
						fmt.Println(filename)
					}
				case fmtOverwrite:
					if output == string(source) {
						continue
					}
					if err := os.WriteFile(filename, []byte(output), 0644); err != nil {
						return fmt.Errorf("write file: %w", err)
					}
				default:
					if _, err := io.WriteString(os.Stdout, output); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&fmtOverwrite, "write", "w", false, "overwrite files in place")
	cmd.Flags().BoolVarP(&fmtList, "list", "l", false, "list files whose formatting differs")
	cmd.Flags().IntVar(&indent, "indent", len(format.DefaultIndent), "spaces per indentation level")

	return cmd
}

package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	_ "github.com/tliron/commonlog/simple"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/lsp"
	"github.com/dhamidi/thriftls/metrics"
	"github.com/dhamidi/thriftls/ui"
)

func newLSPCmd() *cobra.Command {
	var flags engineFlags
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			cfg.MetricsAddr = metricsAddr

			reg, rec := metrics.NewRegistry()
			server := lsp.NewServer(version, cfg, analysis.WithObserver(rec.Observe))
			if err := metrics.Register(reg, server.Engine); err != nil {
				return err
			}

			if cfg.MetricsAddr != "" {
				status, err := ui.NewServer(server.Engine, server.Documents().Paths)
				if err != nil {
					return err
				}
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler(reg))
				mux.Handle("/", status)

				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() {
					if err := metrics.Serve(ctx, cfg.MetricsAddr, mux); err != nil {
						log.Errorf("metrics server: %s", err)
					}
				}()
			}

			return server.RunStdio()
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics and a status page on this address")

	return cmd
}

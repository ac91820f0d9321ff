package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/server"
)

func newServeCommand(st *cliState) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve status and metrics, optionally ingesting on a schedule",
		Long: `serve exposes /monitor/status, /metrics and /healthz, samples process CPU
and memory, and with --interval runs an ingestion immediately and then once per
interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				st.cfg.MetricsAddr = addr
			}
			if cmd.Flags().Changed("interval") {
				st.cfg.Interval = interval
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sampler, err := metrics.NewSampler(a.metrics, st.cfg.SampleInterval, st.logger)
			if err != nil {
				st.logger.Warn("performance_sampler_disabled", "error", err)
			} else {
				go sampler.Run(ctx)
			}

			if st.cfg.Interval > 0 {
				go runScheduled(a, st.cfg.Interval, ctx.Done(), func() error {
					_, err := a.coordinator.Run(ctx, st.cfg.SourceURL)
					return err
				})
			}

			srv := server.New(st.cfg.MetricsAddr, server.Routes(a.monitor, a.metrics, a.healthCheck), st.logger)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address for status and metrics.")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Ingestion period, e.g. 24h (0 disables scheduling).")
	return cmd
}

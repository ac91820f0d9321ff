package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/geosync/internal/ingest"
	"github.com/dshills/geosync/internal/mcp"
	"github.com/dshills/geosync/internal/progress"
	"github.com/dshills/geosync/internal/syncer"
)

func newIngestCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch the source and upsert every feature once",
		Long: `ingest downloads the configured source, keeps a timestamped backup of the
payload and upserts its features in parallel chunks. It exits non-zero only when
the source cannot be fetched; rejected features and failed chunks are reported
in the summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summary, err := a.coordinator.Run(cmd.Context(), st.cfg.SourceURL)
			if err != nil {
				return err
			}
			return writeJSON(st.stdout, map[string]interface{}{
				"total_features":      summary.Total,
				"successful_features": summary.Succeeded,
				"failed_features":     summary.Failed,
				"chunks":              summary.Chunks,
				"failed_chunks":       summary.FailedChunks,
				"partial":             summary.Partial(),
				"success_rate":        summary.SuccessRate(),
				"duration_seconds":    summary.Duration.Seconds(),
			})
		},
	}
}

func newSyncCommand(st *cliState) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replace all features when the source content changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var opts []syncer.SyncOption
			if force {
				opts = append(opts, syncer.Force())
			}
			res, err := a.syncer.Sync(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			return writeJSON(st.stdout, map[string]interface{}{
				"state":         res.State,
				"source":        res.Source,
				"hash":          res.Hash,
				"previous_hash": res.Previous,
				"replaced":      res.Replaced,
				"skipped":       res.Skipped,
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace even when the content hash is unchanged.")
	return cmd
}

func newStatusCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last persisted run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := progress.ReadStatus(st.cfg.StatusFile)
			if err != nil {
				return err
			}
			return writeJSON(st.stdout, state)
		},
	}
}

func newMCPCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv, err := mcp.NewServer(mcp.Dependencies{
				Coordinator: a.coordinator,
				Syncer:      a.syncer,
				Store:       a.store,
				SourceURL:   st.cfg.SourceURL,
				Logger:      st.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(cmd.Context()) }()

			select {
			case <-cmd.Context().Done():
				st.logger.Info("mcp_server_stopped")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}

// runScheduled ingests immediately and then every interval until done closes.
func runScheduled(a *app, interval time.Duration, done <-chan struct{}, run func() error) {
	if err := run(); err != nil && !errors.Is(err, ingest.ErrRunInProgress) {
		a.logger.Error("scheduled_ingestion_failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := run(); err != nil {
				if errors.Is(err, ingest.ErrRunInProgress) {
					a.logger.Warn("scheduled_ingestion_skipped", "reason", "previous run still active")
					continue
				}
				a.logger.Error("scheduled_ingestion_failed", "error", err)
			}
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

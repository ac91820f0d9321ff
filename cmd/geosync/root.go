package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/geosync/internal/config"
	"github.com/dshills/geosync/internal/logging"
)

// cliState is shared by all subcommands; PersistentPreRunE fills it.
type cliState struct {
	stdout io.Writer
	stderr io.Writer

	envFile string
	flags   flagOverrides

	cfg    *config.Config
	logger *slog.Logger
}

// flagOverrides are applied on top of the environment when set.
type flagOverrides struct {
	url            string
	store          string
	dbPath         string
	chunkSize      int
	featureWorkers int
	chunkWorkers   int
	logLevel       string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	st := &cliState{stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "geosync",
		Short: "Ingest GeoJSON feature collections into a spatial store",
		Long: `geosync downloads a GeoJSON FeatureCollection, validates and normalizes
every geometry, and upserts the features into SQLite or PostGIS in parallel
chunks while reporting progress and Prometheus metrics.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load(cmd)
		},
	}
	rc.SetVersionTemplate(versionInfo())

	pf := rc.PersistentFlags()
	pf.StringVar(&st.envFile, "env-file", ".env", "Environment file to read before the process environment.")
	pf.StringVar(&st.flags.url, "url", "", "Source FeatureCollection URL.")
	pf.StringVar(&st.flags.store, "store", "", "Store backend: sqlite or postgres.")
	pf.StringVar(&st.flags.dbPath, "db", "", "SQLite database file.")
	pf.IntVar(&st.flags.chunkSize, "chunk-size", 0, "Features per chunk.")
	pf.IntVar(&st.flags.featureWorkers, "feature-workers", 0, "Concurrent features per chunk.")
	pf.IntVar(&st.flags.chunkWorkers, "chunk-workers", 0, "Concurrent chunks.")
	pf.StringVar(&st.flags.logLevel, "log-level", "", "Log level: debug, info, warn or error.")

	rc.AddCommand(newIngestCommand(st))
	rc.AddCommand(newSyncCommand(st))
	rc.AddCommand(newStatusCommand(st))
	rc.AddCommand(newServeCommand(st))
	rc.AddCommand(newMCPCommand(st))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// load reads configuration and installs the logger.
func (st *cliState) load(cmd *cobra.Command) error {
	cfg, err := config.Load(st.envFile)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("url") {
		cfg.SourceURL = st.flags.url
	}
	if f.Changed("store") {
		cfg.Store = st.flags.store
	}
	if f.Changed("db") {
		cfg.SQLitePath = st.flags.dbPath
	}
	if f.Changed("chunk-size") {
		cfg.ChunkSize = st.flags.chunkSize
	}
	if f.Changed("feature-workers") {
		cfg.FeatureWorkers = st.flags.featureWorkers
	}
	if f.Changed("chunk-workers") {
		cfg.ChunkWorkers = st.flags.chunkWorkers
	}
	if f.Changed("log-level") {
		cfg.LogLevel = st.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st.cfg = cfg
	st.logger = logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: st.stderr})
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/geosync/internal/config"
	"github.com/dshills/geosync/internal/fetcher"
	"github.com/dshills/geosync/internal/geometry"
	"github.com/dshills/geosync/internal/ingest"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/progress"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/internal/syncer"
)

// app wires the pipeline components for one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store       storage.Storage
	redis       *redis.Client
	metrics     *metrics.Collector
	monitor     *progress.Monitor
	fetcher     *fetcher.Fetcher
	coordinator *ingest.Coordinator
	syncer      *syncer.Manager
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	sinks := []progress.Sink{progress.NewFileSink(cfg.StatusFile)}
	if cfg.RedisEnabled() {
		client := redis.NewClient(cfg.RedisOptions())
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
			_ = client.Close()
		} else {
			a.redis = client
			sinks = append(sinks, progress.NewRedisSink(client, cfg.RedisStatusKey, 0))
		}
	}
	a.monitor = progress.NewMonitor(logger, sinks...)

	a.fetcher = fetcher.New(cfg.BackupDir, a.metrics,
		fetcher.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		fetcher.WithRetryPolicy(fetcher.RetryPolicy{
			MaxAttempts: cfg.FetchAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Multiplier:  2,
		}),
		fetcher.WithLogger(logger),
	)

	normalizer := geometry.NewNormalizer(geometry.NewCache(cfg.CacheSize))
	a.coordinator = ingest.New(a.store, a.fetcher,
		ingest.WithConfig(&ingest.Config{
			ChunkSize:      cfg.ChunkSize,
			ChunkWorkers:   cfg.ChunkWorkers,
			FeatureWorkers: cfg.FeatureWorkers,
		}),
		ingest.WithNormalizer(normalizer),
		ingest.WithMonitor(a.monitor),
		ingest.WithMetrics(a.metrics),
		ingest.WithLogger(logger),
	)
	a.syncer = syncer.New(a.store, a.fetcher, cfg.SourceURL,
		syncer.WithNormalizer(normalizer),
		syncer.WithMetrics(a.metrics),
		syncer.WithLogger(logger),
	)

	logger.Info("pipeline_ready",
		"store", cfg.Store,
		"source", cfg.SourceURL,
		"chunk_size", cfg.ChunkSize,
		"chunk_workers", cfg.ChunkWorkers,
		"feature_workers", cfg.FeatureWorkers,
		"geometry_engine", normalizer.Engine(),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := storage.NewPostgresStorage(ctx, cfg.PostgresDSN, storage.PostgresOptions{
			MaxOpenConns: cfg.PGMaxOpenConns,
			MaxIdleConns: cfg.PGMaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return s, nil
	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return s, nil
	}
}

// healthCheck reports whether the store answers a query.
func (a *app) healthCheck(ctx context.Context) error {
	_, err := a.store.CountFeatures(ctx)
	return err
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

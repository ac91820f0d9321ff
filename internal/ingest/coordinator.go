package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/geosync/internal/geometry"
	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/progress"
	"github.com/dshills/geosync/pkg/types"
)

// DefaultChunkSize is the number of features committed per transaction
const DefaultChunkSize = 100

// DocumentFetcher downloads and parses a source document
type DocumentFetcher interface {
	FetchWithRetry(ctx context.Context, url string) (*types.SourceDocument, error)
}

// Config contains configuration for the coordinator
type Config struct {
	ChunkSize      int // Features per chunk (default: 100)
	ChunkWorkers   int // Chunks in flight (default: NumCPU-1, at least 1)
	FeatureWorkers int // Feature workers per chunk (default: NumCPU-1, at least 1)
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() *Config {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return &Config{
		ChunkSize:      DefaultChunkSize,
		ChunkWorkers:   workers,
		FeatureWorkers: workers,
	}
}

// Coordinator drives one ingestion run: fetch, split, dispatch chunks and
// aggregate their results into progress and metrics.
type Coordinator struct {
	store      TxBeginner
	fetcher    DocumentFetcher
	normalizer *geometry.Normalizer
	monitor    *progress.Monitor
	metrics    *metrics.Collector
	logger     *slog.Logger
	config     Config

	lock RunLock
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithConfig overrides the default configuration; zero fields keep defaults.
func WithConfig(cfg *Config) Option {
	return func(c *Coordinator) {
		if cfg == nil {
			return
		}
		if cfg.ChunkSize > 0 {
			c.config.ChunkSize = cfg.ChunkSize
		}
		if cfg.ChunkWorkers > 0 {
			c.config.ChunkWorkers = cfg.ChunkWorkers
		}
		if cfg.FeatureWorkers > 0 {
			c.config.FeatureWorkers = cfg.FeatureWorkers
		}
	}
}

// WithNormalizer shares a normalizer (and its cache) across runs
func WithNormalizer(n *geometry.Normalizer) Option {
	return func(c *Coordinator) { c.normalizer = n }
}

// WithMonitor sets the progress monitor
func WithMonitor(m *progress.Monitor) Option {
	return func(c *Coordinator) { c.monitor = m }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator writing to store. fetcher may be nil when only
// Ingest is used.
func New(store TxBeginner, fetcher DocumentFetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		fetcher: fetcher,
		config:  *DefaultConfig(),
		logger:  logging.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.normalizer == nil {
		c.normalizer = geometry.NewNormalizer(geometry.NewCache(geometry.DefaultCacheSize))
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.monitor == nil {
		c.monitor = progress.NewMonitor(c.logger)
	}
	return c
}

// Monitor returns the progress monitor updated by runs
func (c *Coordinator) Monitor() *progress.Monitor { return c.monitor }

// Running reports whether a run is in flight
func (c *Coordinator) Running() bool { return c.lock.Held() }

// Run fetches url with retries and ingests the document. A fetch failure marks
// the run Failed and dispatches no chunk.
func (c *Coordinator) Run(ctx context.Context, url string) (*types.RunSummary, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("coordinator has no fetcher")
	}
	if !c.lock.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer c.lock.Release()

	c.monitor.Prepare()
	c.logger.Info("ingestion_started", "url", url)

	doc, err := c.fetcher.FetchWithRetry(ctx, url)
	if err != nil {
		err = fmt.Errorf("fetch %s: %w", url, err)
		c.monitor.Fail(err)
		return nil, err
	}
	c.logger.Info("document_fetched",
		"url", url,
		"features", len(doc.Features),
		"bytes", doc.Bytes,
		"backup", doc.BackupPath,
		"hash", doc.Hash,
	)
	return c.ingest(ctx, doc)
}

// Ingest processes an already fetched document. Cancelling ctx stops dispatch;
// the partial summary is returned with the error.
func (c *Coordinator) Ingest(ctx context.Context, doc *types.SourceDocument) (*types.RunSummary, error) {
	if !c.lock.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer c.lock.Release()

	return c.ingest(ctx, doc)
}

// ingest dispatches every chunk. A cancelled context marks the run Failed and
// returns the partial summary with the cancellation error.
func (c *Coordinator) ingest(ctx context.Context, doc *types.SourceDocument) (*types.RunSummary, error) {
	start := time.Now()
	features := doc.Features
	c.monitor.Start(len(features))

	processor := NewProcessor(c.normalizer, NewIDAllocator(features), c.metrics, c.logger)
	worker := NewChunkWorker(c.store, processor, c.config.FeatureWorkers, c.metrics, c.logger)
	chunks := Split(features, c.config.ChunkSize)

	summary := &types.RunSummary{Total: len(features), Chunks: len(chunks)}
	var mu sync.Mutex
	record := func(res types.ChunkResult) {
		mu.Lock()
		summary.Succeeded += res.Succeeded
		summary.Failed += res.Failed()
		if !res.Committed {
			summary.FailedChunks++
		}
		succeeded := summary.Succeeded
		mu.Unlock()

		c.monitor.Advance(res.Succeeded, res.Failed())
		c.metrics.UpdateProcessingSpeed(succeeded, start)
	}

	// Semaphore to bound chunks in flight; dispatch keeps split order
	semaphore := make(chan struct{}, c.config.ChunkWorkers)
	var g errgroup.Group

dispatch:
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			for j := i; j < len(chunks); j++ {
				record(types.ChunkResult{Index: j, Attempted: len(chunks[j]), Err: ctx.Err()})
			}
			break dispatch
		case semaphore <- struct{}{}:
		}

		g.Go(func() error {
			defer func() { <-semaphore }()
			record(c.runChunk(ctx, worker, i, chunk))
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("ingestion interrupted: %w", err)
		c.monitor.Fail(err)
		return summary, err
	}
	c.monitor.Complete()
	return summary, nil
}

// runChunk converts a panicking chunk into a zero-success result.
func (c *Coordinator) runChunk(ctx context.Context, w *ChunkWorker, index int, chunk []types.Feature) (res types.ChunkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = types.ChunkResult{
				Index:     index,
				Attempted: len(chunk),
				Err:       fmt.Errorf("chunk %d panicked: %v", index, r),
			}
			c.logger.Error("chunk_panic", "chunk", index, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return w.Run(ctx, index, chunk)
}

// Split partitions features into consecutive chunks of at most size,
// preserving order. A non-positive size uses DefaultChunkSize.
func Split(features []types.Feature, size int) [][]types.Feature {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]types.Feature, 0, (len(features)+size-1)/size)
	for i := 0; i < len(features); i += size {
		end := i + size
		if end > len(features) {
			end = len(features)
		}
		chunks = append(chunks, features[i:end])
	}
	return chunks
}

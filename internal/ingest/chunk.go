package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/pkg/types"
)

// TxBeginner opens the per-chunk transaction
type TxBeginner interface {
	BeginTx(ctx context.Context) (storage.Tx, error)
}

// serialTx lets several feature workers share one transaction. Each store call
// runs alone.
type serialTx struct {
	mu sync.Mutex
	tx storage.Tx
}

func (s *serialTx) UpsertFeature(ctx context.Context, f *storage.Feature) (types.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx.UpsertFeature(ctx, f)
}

// ChunkWorker processes one batch of features inside one transaction and
// commits or rolls back the batch as a unit.
type ChunkWorker struct {
	store     TxBeginner
	processor *Processor
	workers   int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewChunkWorker creates a worker running up to workers features at a time.
func NewChunkWorker(store TxBeginner, p *Processor, workers int, m *metrics.Collector, logger *slog.Logger) *ChunkWorker {
	if workers < 1 {
		workers = 1
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.L()
	}
	return &ChunkWorker{store: store, processor: p, workers: workers, metrics: m, logger: logger}
}

// Run processes chunk and commits it. Succeeded is reported only for a
// committed chunk; a failed commit yields zero successes and an error wrapping
// types.ErrCommitFailed.
func (w *ChunkWorker) Run(ctx context.Context, index int, chunk []types.Feature) types.ChunkResult {
	start := time.Now()
	result := types.ChunkResult{Index: index, Attempted: len(chunk)}
	defer func() {
		result.Duration = time.Since(start)
		w.metrics.ObserveChunk(result.Duration)
	}()

	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		result.Err = fmt.Errorf("chunk %d: begin transaction: %w", index, err)
		w.logger.Error("chunk_failed", "chunk", index, "error", result.Err)
		return result
	}

	results := w.processAll(ctx, tx, chunk)
	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		w.metrics.TrackDBOperation(metrics.OpRollback)
		result.Err = fmt.Errorf("chunk %d: %w: %v", index, types.ErrCommitFailed, err)
		w.logger.Error("chunk_commit_failed",
			"chunk", index,
			"features", len(chunk),
			"error", err,
		)
		return result
	}
	w.metrics.TrackDBOperation(metrics.OpCommit)

	result.Succeeded = succeeded
	result.Committed = true
	w.logger.Debug("chunk_committed",
		"chunk", index,
		"succeeded", succeeded,
		"failed", len(chunk)-succeeded,
	)
	return result
}

// processAll fans the chunk out across the worker pool. Every feature gets its
// own result slot and no failure stops its siblings.
func (w *ChunkWorker) processAll(ctx context.Context, tx storage.Tx, chunk []types.Feature) []types.ProcessingResult {
	handle := &serialTx{tx: tx}
	results := make([]types.ProcessingResult, len(chunk))

	var g errgroup.Group
	g.SetLimit(w.workers)
	for i := range chunk {
		g.Go(func() error {
			w.metrics.WorkerStarted()
			defer w.metrics.WorkerDone()
			defer func() {
				if r := recover(); r != nil {
					results[i] = types.Rejected(chunk[i].ID, "panic",
						fmt.Errorf("%w: panic: %v", types.ErrFeatureRejected, r))
					w.logger.Error("feature_panic", "feature_id", chunk[i].ID, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			results[i] = w.processor.Process(ctx, chunk[i], handle)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

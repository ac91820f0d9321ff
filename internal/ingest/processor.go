package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/geosync/internal/geometry"
	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/pkg/types"
)

// Upserter is the part of the store a feature worker writes through
type Upserter interface {
	UpsertFeature(ctx context.Context, feature *storage.Feature) (types.Outcome, error)
}

// Processor validates, normalizes and upserts single features. One Processor
// serves one run; it is safe for concurrent use.
type Processor struct {
	normalizer *geometry.Normalizer
	ids        *IDAllocator
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewProcessor creates a processor. ids supplies synthetic ids for features
// without one.
func NewProcessor(n *geometry.Normalizer, ids *IDAllocator, m *metrics.Collector, logger *slog.Logger) *Processor {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Processor{normalizer: n, ids: ids, metrics: m, logger: logger}
}

// Process handles one feature. On success exactly one upsert has been issued
// through handle; a rejected feature leaves the store untouched.
func (p *Processor) Process(ctx context.Context, f types.Feature, handle Upserter) types.ProcessingResult {
	start := time.Now()
	res := p.process(ctx, f, handle)
	p.metrics.TrackFeature(res.Succeeded(), time.Since(start))

	if !res.Succeeded() {
		p.logger.Warn("feature_rejected",
			"feature_id", res.FeatureID,
			"reason", res.Reason,
			"error", res.Err,
		)
	}
	return res
}

func (p *Processor) process(ctx context.Context, f types.Feature, handle Upserter) types.ProcessingResult {
	if f.DecodeErr != nil {
		return types.Rejected(f.ID, types.ReasonInvalidFeature, fmt.Errorf("%w: %w", types.ErrFeatureRejected, f.DecodeErr))
	}
	if f.Geometry == nil || !f.HasProperties {
		field := "geometry"
		if f.Geometry != nil {
			field = "properties"
		}
		return types.Rejected(f.ID, types.ReasonMissingField,
			fmt.Errorf("%w: %w: %s", types.ErrFeatureRejected, types.ErrMissingField, field))
	}

	id := f.ID
	if id == "" {
		id = p.ids.Next()
	}

	geom, err := p.normalizer.Normalize(f.Geometry)
	if err != nil {
		return types.Rejected(id, types.ReasonInvalidGeometry, fmt.Errorf("%w: %w", types.ErrFeatureRejected, err))
	}

	outcome, err := handle.UpsertFeature(ctx, storage.NewFeature(id, geom, f.Properties))
	if err != nil {
		return types.Rejected(id, types.ReasonStoreError, fmt.Errorf("%w: %w", types.ErrFeatureRejected, err))
	}

	switch outcome {
	case types.OutcomeInserted:
		p.metrics.TrackDBOperation(metrics.OpInsert)
	case types.OutcomeUpdated:
		p.metrics.TrackDBOperation(metrics.OpUpdate)
	}
	return types.ProcessingResult{FeatureID: id, Outcome: outcome}
}

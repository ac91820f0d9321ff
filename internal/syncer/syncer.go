package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dshills/geosync/internal/geometry"
	"github.com/dshills/geosync/internal/ingest"
	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/pkg/types"
)

// ErrSyncInProgress is returned when Sync is called while another sync runs
var ErrSyncInProgress = errors.New("sync already in progress")

// State is the stage a sync reached
type State string

const (
	StateIdle        State = "idle"
	StateFetched     State = "fetched"
	StateUpToDate    State = "up_to_date"
	StateNeedsUpdate State = "needs_update"
	StateSynced      State = "synced"
)

// Store is the part of the storage layer a sync needs
type Store interface {
	GetSyncState(ctx context.Context, source string) (*storage.SyncState, error)
	SaveSyncState(ctx context.Context, state *storage.SyncState) error
	ReplaceAll(ctx context.Context, features []*storage.Feature) (int, error)
}

// Result describes one Sync call
type Result struct {
	State    State
	Source   string
	Hash     string
	Previous string // hash stored before this sync, empty if none
	Replaced int    // features in the store after the replace
	Skipped  int    // features dropped during normalization
	Duration time.Duration
}

// Manager compares the source document's content hash against the stored
// sync state and replaces the whole feature set when it changed.
type Manager struct {
	store      Store
	fetcher    ingest.DocumentFetcher
	normalizer *geometry.Normalizer
	metrics    *metrics.Collector
	logger     *slog.Logger
	source     string
	now        func() time.Time

	running atomic.Bool
}

// Option configures a Manager
type Option func(*Manager)

// WithNormalizer shares a normalizer with the ingestion coordinator
func WithNormalizer(n *geometry.Normalizer) Option {
	return func(m *Manager) { m.normalizer = n }
}

// WithMetrics sets the metrics collector
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock sets the time source for LastSync
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager for source
func New(store Store, f ingest.DocumentFetcher, source string, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		fetcher: f,
		source:  source,
		logger:  logging.L(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.normalizer == nil {
		m.normalizer = geometry.NewNormalizer(geometry.NewCache(geometry.DefaultCacheSize))
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	return m
}

type syncOptions struct {
	force bool
}

// SyncOption modifies one Sync call
type SyncOption func(*syncOptions)

// Force replaces the feature set even when the hash is unchanged
func Force() SyncOption {
	return func(o *syncOptions) { o.force = true }
}

// Sync fetches the source and, when its hash differs from the stored one,
// replaces every feature in one transaction. Replace failures leave the stored
// sync state untouched and wrap types.ErrUpdateFailed.
func (m *Manager) Sync(ctx context.Context, opts ...SyncOption) (*Result, error) {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer m.running.Store(false)

	start := time.Now()
	res := &Result{State: StateIdle, Source: m.source}

	doc, err := m.fetcher.FetchWithRetry(ctx, m.source)
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", m.source, err)
	}
	res.State = StateFetched
	res.Hash = doc.Hash

	prev, err := m.store.GetSyncState(ctx, m.source)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return res, fmt.Errorf("load sync state: %w", err)
	default:
		res.Previous = prev.DataHash
	}

	if !o.force && res.Previous != "" && res.Previous == doc.Hash {
		res.State = StateUpToDate
		res.Duration = time.Since(start)
		m.logger.Info("sync_up_to_date", "source", m.source, "hash", doc.Hash)
		return res, nil
	}
	res.State = StateNeedsUpdate
	m.logger.Info("sync_needs_update",
		"source", m.source,
		"previous_hash", res.Previous,
		"hash", doc.Hash,
		"forced", o.force,
	)

	features, skipped := m.prepare(doc.Features)
	res.Skipped = skipped

	n, err := m.store.ReplaceAll(ctx, features)
	if err != nil {
		m.metrics.TrackDBOperation(metrics.OpRollback)
		m.logger.Error("sync_replace_failed", "source", m.source, "error", err)
		return res, fmt.Errorf("%w: replace: %v", types.ErrUpdateFailed, err)
	}
	m.metrics.TrackDBOperation(metrics.OpReplace)
	res.Replaced = n

	state := &storage.SyncState{Source: m.source, LastSync: m.now().UTC(), DataHash: doc.Hash}
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return res, fmt.Errorf("%w: save sync state: %v", types.ErrUpdateFailed, err)
	}

	res.State = StateSynced
	res.Duration = time.Since(start)
	m.logger.Info("sync_completed",
		"source", m.source,
		"features", n,
		"skipped", skipped,
		"duration_seconds", res.Duration.Seconds(),
	)
	return res, nil
}

// prepare normalizes every feature, dropping the ones that cannot be stored.
func (m *Manager) prepare(features []types.Feature) ([]*storage.Feature, int) {
	ids := ingest.NewIDAllocator(features)
	out := make([]*storage.Feature, 0, len(features))
	skipped := 0
	for _, f := range features {
		sf, reason, err := m.prepareOne(f, ids)
		if err != nil {
			skipped++
			m.logger.Warn("feature_rejected", "feature_id", f.ID, "reason", reason, "error", err)
			continue
		}
		out = append(out, sf)
	}
	return out, skipped
}

func (m *Manager) prepareOne(f types.Feature, ids *ingest.IDAllocator) (sf *storage.Feature, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sf, reason, err = nil, "panic", fmt.Errorf("%w: panic: %v", types.ErrFeatureRejected, r)
		}
	}()

	if f.DecodeErr != nil {
		return nil, types.ReasonInvalidFeature, f.DecodeErr
	}
	if f.Geometry == nil || !f.HasProperties {
		return nil, types.ReasonMissingField, types.ErrMissingField
	}
	geom, err := m.normalizer.Normalize(f.Geometry)
	if err != nil {
		return nil, types.ReasonInvalidGeometry, err
	}
	id := f.ID
	if id == "" {
		id = ids.Next()
	}
	return storage.NewFeature(id, geom, f.Properties), "", nil
}

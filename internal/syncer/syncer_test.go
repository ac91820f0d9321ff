package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/pkg/types"
)

const source = "http://example.com/districts.geojson"

// fakeFetcher serves documents from a mutable slot
type fakeFetcher struct {
	mu    sync.Mutex
	doc   *types.SourceDocument
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (f *fakeFetcher) FetchWithRetry(ctx context.Context, url string) (*types.SourceDocument, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc, f.err
}

func (f *fakeFetcher) set(doc *types.SourceDocument) {
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
}

// replaceCounter wraps a store and counts ReplaceAll calls
type replaceCounter struct {
	*storage.SQLiteStorage
	replaces atomic.Int32
	failWith error
}

func (s *replaceCounter) ReplaceAll(ctx context.Context, features []*storage.Feature) (int, error) {
	s.replaces.Add(1)
	if s.failWith != nil {
		return 0, s.failWith
	}
	return s.SQLiteStorage.ReplaceAll(ctx, features)
}

func setup(t *testing.T) (*replaceCounter, *fakeFetcher, *Manager) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := &replaceCounter{SQLiteStorage: db}
	f := &fakeFetcher{}
	m := New(store, f, source, WithLogger(logging.Discard()))
	return store, f, m
}

func doc(hash string, n int) *types.SourceDocument {
	features := make([]types.Feature, n)
	for i := range features {
		features[i] = types.Feature{
			ID:            fmt.Sprintf("d%d", i),
			Geometry:      json.RawMessage(fmt.Sprintf(`{"type":"Point","coordinates":[%d,1,5]}`, i)),
			Properties:    types.NewProperties(types.Property{Key: "i", Value: json.RawMessage(fmt.Sprint(i))}),
			HasProperties: true,
		}
	}
	return &types.SourceDocument{URL: source, Features: features, Hash: hash}
}

func TestSync_UnchangedSourceReplacesOnce(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()
	f.set(doc("h1", 3))

	res, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, 3, res.Replaced)
	assert.Empty(t, res.Previous)

	res, err = m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUpToDate, res.State)
	assert.Equal(t, "h1", res.Previous)

	assert.Equal(t, int32(1), store.replaces.Load())

	st, err := store.GetSyncState(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, "h1", st.DataHash)
}

func TestSync_ChangedSourceReplaces(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()

	f.set(doc("h1", 5))
	_, err := m.Sync(ctx)
	require.NoError(t, err)

	f.set(doc("h2", 2))
	res, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, 2, res.Replaced)

	count, err := store.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.GetFeature(ctx, "d4")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// z is dropped on the way in
	got, err := store.GetFeature(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, types.Position{1, 1}, got.Geometry.Point)
}

func TestSync_Force(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()
	f.set(doc("h1", 1))

	_, err := m.Sync(ctx)
	require.NoError(t, err)
	res, err := m.Sync(ctx, Force())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, int32(2), store.replaces.Load())
}

func TestSync_SkipsRejectedFeatures(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()

	d := doc("h1", 3)
	d.Features[0].Geometry = nil
	d.Features[1].Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,1]]]}`)
	f.set(d)

	res, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Replaced)

	count, err := store.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSync_UnrepairableGeometryIsSkipped(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()

	d := doc("h1", 2)
	d.Features[0].Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1],[1,1],[0,0]]]}`)
	f.set(d)

	var res *Result
	var err error
	require.NotPanics(t, func() { res, err = m.Sync(ctx) })
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Replaced)

	_, err = store.GetFeature(ctx, "d1")
	assert.NoError(t, err)
}

func TestSync_MalformedFeatureIsSkipped(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()

	d := doc("h1", 3)
	d.Features[1] = types.Malformed(json.RawMessage(`{"id":"d1","properties":[1]}`), errors.New("properties must be a JSON object"))
	f.set(d)

	res, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Replaced)

	_, err = store.GetFeature(ctx, "d1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSync_ReplaceFailureKeepsState(t *testing.T) {
	store, f, m := setup(t)
	ctx := context.Background()

	f.set(doc("h1", 2))
	_, err := m.Sync(ctx)
	require.NoError(t, err)

	store.failWith = errors.New("database is locked")
	f.set(doc("h2", 4))
	res, err := m.Sync(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUpdateFailed)
	assert.Equal(t, StateNeedsUpdate, res.State)

	st, err := store.GetSyncState(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, "h1", st.DataHash)

	count, err := store.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSync_FetchFailure(t *testing.T) {
	store, f, m := setup(t)
	f.err = fmt.Errorf("%w: status 502", types.ErrNetwork)

	res, err := m.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.Equal(t, StateIdle, res.State)
	assert.Equal(t, int32(0), store.replaces.Load())
}

func TestSync_InProgress(t *testing.T) {
	_, f, m := setup(t)
	f.set(doc("h1", 1))
	f.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Sync(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	_, err := m.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(f.block)
	require.NoError(t, <-done)
}

func TestSync_LastSyncClock(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	fixed := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	f := &fakeFetcher{}
	f.set(doc("h1", 1))
	m := New(db, f, source, WithLogger(logging.Discard()), WithClock(func() time.Time { return fixed }))

	_, err = m.Sync(context.Background())
	require.NoError(t, err)

	st, err := db.GetSyncState(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(st.LastSync))
}

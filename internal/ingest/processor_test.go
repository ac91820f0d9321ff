package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/geosync/internal/geometry"
	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/pkg/types"
)

// recordingUpserter captures upserts without a database
type recordingUpserter struct {
	mu       sync.Mutex
	features []*storage.Feature
	seen     map[string]bool
	err      error
}

func (r *recordingUpserter) UpsertFeature(ctx context.Context, f *storage.Feature) (types.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.OutcomeRejected, r.err
	}
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	r.features = append(r.features, f)
	if r.seen[f.FeatureID] {
		return types.OutcomeUpdated, nil
	}
	r.seen[f.FeatureID] = true
	return types.OutcomeInserted, nil
}

func newTestProcessor(features []types.Feature) (*Processor, *metrics.Collector) {
	m := metrics.New()
	return NewProcessor(geometry.NewNormalizer(nil), NewIDAllocator(features), m, logging.Discard()), m
}

func TestProcess_InsertThenUpdate(t *testing.T) {
	p, m := newTestProcessor(nil)
	up := &recordingUpserter{}
	ctx := context.Background()

	res := p.Process(ctx, pointFeature("a", 1, 2), up)
	assert.Equal(t, types.OutcomeInserted, res.Outcome)
	assert.Equal(t, "a", res.FeatureID)
	assert.True(t, res.Succeeded())

	res = p.Process(ctx, pointFeature("a", 3, 4), up)
	assert.Equal(t, types.OutcomeUpdated, res.Outcome)

	require.Len(t, up.features, 2)
	assert.Equal(t, types.Position{3, 4}, up.features[1].Geometry.Point)
	assert.Equal(t, types.SRID4326, up.features[1].SRID)
	assert.Equal(t, int64(2), m.Processed())
}

func TestProcess_MissingFields(t *testing.T) {
	p, m := newTestProcessor(nil)
	up := &recordingUpserter{}

	noGeom := pointFeature("g", 0, 0)
	noGeom.Geometry = nil
	noProps := pointFeature("p", 0, 0)
	noProps.HasProperties = false

	for _, f := range []types.Feature{noGeom, noProps} {
		res := p.Process(context.Background(), f, up)
		assert.Equal(t, types.OutcomeRejected, res.Outcome)
		assert.Equal(t, types.ReasonMissingField, res.Reason)
		assert.ErrorIs(t, res.Err, types.ErrMissingField)
		assert.ErrorIs(t, res.Err, types.ErrFeatureRejected)
	}
	assert.Empty(t, up.features, "rejected features must not reach the store")
	assert.Equal(t, int64(2), m.Failed())
}

func TestProcess_InvalidGeometry(t *testing.T) {
	p, _ := newTestProcessor(nil)
	up := &recordingUpserter{}

	f := pointFeature("x", 0, 0)
	f.Geometry = json.RawMessage(`{"type":"Polygon","coordinates":"nope"}`)

	res := p.Process(context.Background(), f, up)
	assert.Equal(t, types.OutcomeRejected, res.Outcome)
	assert.Equal(t, types.ReasonInvalidGeometry, res.Reason)
	assert.ErrorIs(t, res.Err, types.ErrInvalidGeometry)
	assert.Empty(t, up.features)
}

func TestProcess_ShortPositionIsInvalidGeometry(t *testing.T) {
	p, _ := newTestProcessor(nil)
	up := &recordingUpserter{}

	f := pointFeature("short", 0, 0)
	f.Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1],[1,1],[0,0]]]}`)

	res := p.Process(context.Background(), f, up)
	assert.Equal(t, types.ReasonInvalidGeometry, res.Reason)
	assert.ErrorIs(t, res.Err, types.ErrInvalidGeometry)
	assert.Empty(t, up.features)
}

func TestProcess_MalformedFeature(t *testing.T) {
	p, m := newTestProcessor(nil)
	up := &recordingUpserter{}

	f := types.Malformed(json.RawMessage(`{"id":"m1","properties":[1,2]}`), errors.New("properties must be a JSON object"))
	res := p.Process(context.Background(), f, up)
	assert.Equal(t, types.OutcomeRejected, res.Outcome)
	assert.Equal(t, types.ReasonInvalidFeature, res.Reason)
	assert.Equal(t, "m1", res.FeatureID)
	assert.ErrorIs(t, res.Err, types.ErrInvalidFeature)
	assert.ErrorIs(t, res.Err, types.ErrFeatureRejected)
	assert.Empty(t, up.features)
	assert.Equal(t, int64(1), m.Failed())
}

func TestProcess_StoreError(t *testing.T) {
	p, _ := newTestProcessor(nil)
	up := &recordingUpserter{err: errors.New("constraint failed")}

	res := p.Process(context.Background(), pointFeature("s", 0, 0), up)
	assert.Equal(t, types.OutcomeRejected, res.Outcome)
	assert.Equal(t, types.ReasonStoreError, res.Reason)
	assert.Equal(t, "s", res.FeatureID)
}

func TestProcess_GeneratedID(t *testing.T) {
	p, _ := newTestProcessor(nil)
	up := &recordingUpserter{}

	res := p.Process(context.Background(), pointFeature("", 0, 0), up)
	require.True(t, res.Succeeded())
	assert.NotEmpty(t, res.FeatureID)
	assert.Equal(t, res.FeatureID, up.features[0].FeatureID)
}

func TestIDAllocator_AvoidsCollisions(t *testing.T) {
	a := NewIDAllocator([]types.Feature{{ID: "taken"}, {ID: ""}})

	draws := []string{"taken", "taken", "fresh", "fresh", "other"}
	a.newID = func() string {
		id := draws[0]
		draws = draws[1:]
		return id
	}

	assert.Equal(t, "fresh", a.Next())
	assert.Equal(t, "other", a.Next())
}

func TestIDAllocator_Unique(t *testing.T) {
	a := NewIDAllocator(nil)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := a.Next()
		require.False(t, seen[id])
		seen[id] = true
	}
}

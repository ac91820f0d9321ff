package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/geosync/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func testFeature(t *testing.T, id string, x, y float64, props string) *Feature {
	t.Helper()
	var p types.Properties
	require.NoError(t, json.Unmarshal([]byte(props), &p))
	geom := types.Geometry{Type: types.GeometryPoint, Point: types.Position{x, y}}
	return NewFeature(id, geom, p)
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestUpsertFeature(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	f := testFeature(t, "7", 77.5, 12.9, `{"name":"Bengaluru"}`)
	outcome, err := storage.UpsertFeature(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, outcome)
	assert.Greater(t, f.ID, int64(0))
	assert.False(t, f.CreatedAt.IsZero())

	firstID := f.ID

	// Same feature id updates in place
	updated := testFeature(t, "7", 77.6, 13.0, `{"name":"Bangalore"}`)
	outcome, err = storage.UpsertFeature(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUpdated, outcome)
	assert.Equal(t, firstID, updated.ID)

	got, err := storage.GetFeature(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, types.Position{77.6, 13.0}, got.Geometry.Point)
	name, ok := got.Properties.Get("name")
	require.True(t, ok)
	assert.JSONEq(t, `"Bangalore"`, string(name))

	count, err := storage.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertFeature_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := storage.UpsertFeature(ctx, testFeature(t, "a", 1, 2, `{"k":1}`))
		require.NoError(t, err)
	}

	count, err := storage.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetFeature_PreservesProperties(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	props := `{"zeta":1,"alpha":{"nested":[1,2.50,"x"]},"mid":null}`
	_, err := storage.UpsertFeature(ctx, testFeature(t, "p", 0, 0, props))
	require.NoError(t, err)

	got, err := storage.GetFeature(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, got.Properties.Keys())
	assert.Equal(t, types.SRID4326, got.SRID)

	encoded, err := json.Marshal(got.Properties)
	require.NoError(t, err)
	assert.Equal(t, props, string(encoded))
}

func TestGetFeature_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetFeature(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFeature_Polygon(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	square := types.Geometry{
		Type: types.GeometryPolygon,
		Rings: [][]types.Position{{
			{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
		}},
	}
	_, err := storage.UpsertFeature(ctx, NewFeature("sq", square, types.Properties{}))
	require.NoError(t, err)

	got, err := storage.GetFeature(ctx, "sq")
	require.NoError(t, err)
	assert.Equal(t, square, got.Geometry)
	assert.Equal(t, 0, got.Properties.Len())
}

func TestDeleteFeature(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.UpsertFeature(ctx, testFeature(t, "d", 1, 1, `{}`))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteFeature(ctx, "d"))
	_, err = storage.GetFeature(ctx, "d")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, storage.DeleteFeature(ctx, "d"), ErrNotFound)
}

func TestListFeatures(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b", "d"} {
		_, err := storage.UpsertFeature(ctx, testFeature(t, id, 0, 0, `{}`))
		require.NoError(t, err)
	}

	all, err := storage.ListFeatures(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].FeatureID)
	assert.Equal(t, "d", all[3].FeatureID)

	page, err := storage.ListFeatures(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].FeatureID)
	assert.Equal(t, "c", page[1].FeatureID)

	// Offset without limit
	tail, err := storage.ListFeatures(ctx, ListOptions{Offset: 3})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "d", tail[0].FeatureID)
}

func TestReplaceAll(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	for _, id := range []string{"old1", "old2", "keep"} {
		_, err := storage.UpsertFeature(ctx, testFeature(t, id, 0, 0, `{}`))
		require.NoError(t, err)
	}

	n, err := storage.ReplaceAll(ctx, []*Feature{
		testFeature(t, "keep", 5, 5, `{"v":2}`),
		testFeature(t, "new", 6, 6, `{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = storage.GetFeature(ctx, "old1")
	assert.ErrorIs(t, err, ErrNotFound)

	keep, err := storage.GetFeature(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, types.Position{5, 5}, keep.Geometry.Point)
}

func TestReplaceAll_Empty(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.UpsertFeature(ctx, testFeature(t, "x", 0, 0, `{}`))
	require.NoError(t, err)

	n, err := storage.ReplaceAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSyncState(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.GetSyncState(ctx, "http://example.com/a.geojson")
	assert.ErrorIs(t, err, ErrNotFound)

	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, storage.SaveSyncState(ctx, &SyncState{
		Source:   "http://example.com/a.geojson",
		LastSync: first,
		DataHash: "abc",
	}))

	st, err := storage.GetSyncState(ctx, "http://example.com/a.geojson")
	require.NoError(t, err)
	assert.Equal(t, "abc", st.DataHash)
	assert.True(t, first.Equal(st.LastSync))

	// Saving again overwrites
	require.NoError(t, storage.SaveSyncState(ctx, &SyncState{
		Source:   "http://example.com/a.geojson",
		LastSync: first.Add(time.Hour),
		DataHash: "def",
	}))
	st, err = storage.GetSyncState(ctx, "http://example.com/a.geojson")
	require.NoError(t, err)
	assert.Equal(t, "def", st.DataHash)
}

func TestTransaction_Commit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	outcome, err := tx.UpsertFeature(ctx, testFeature(t, "t1", 0, 0, `{}`))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, outcome)

	// Visible inside the transaction
	count, err := tx.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, tx.Commit())

	got, err := storage.GetFeature(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.FeatureID)
}

func TestTransaction_Rollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	_, err = tx.UpsertFeature(ctx, testFeature(t, "t1", 0, 0, `{}`))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	count, err := storage.CountFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTransaction_Nested(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrNestedTx)
}

func TestMigrations(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	v, err := SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Applying again is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	require.NoError(t, RollbackMigration(ctx, storage.db))
	v, err = SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	_, err = storage.GetSyncState(ctx, "x")
	assert.Error(t, err)

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	v, err = SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestBuildMode(t *testing.T) {
	assert.Contains(t, []string{"cgo", "purego"}, BuildMode)
	assert.NotEmpty(t, DriverName)
}

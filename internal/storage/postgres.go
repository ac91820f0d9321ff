package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dshills/geosync/pkg/types"
)

// postgresMigrations create the PostGIS schema
var postgresMigrations = []Migration{
	{
		Version: "1.0.0",
		Up: `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ DEFAULT now()
);

-- properties is json (not jsonb) so member order survives
CREATE TABLE IF NOT EXISTS geo_features (
    id BIGSERIAL PRIMARY KEY,
    feature_id TEXT NOT NULL UNIQUE,
    geometry geometry(Geometry, 4326) NOT NULL,
    properties JSON NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_geo_features_geometry ON geo_features USING GIST (geometry);
CREATE INDEX IF NOT EXISTS idx_geo_features_updated ON geo_features(updated_at);
`,
		Down: `
DROP TABLE IF EXISTS geo_features;
DROP TABLE IF EXISTS schema_version;
`,
	},
	{
		Version: "1.1.0",
		Up: `
CREATE TABLE IF NOT EXISTS sync_state (
    source TEXT PRIMARY KEY,
    last_sync TIMESTAMPTZ NOT NULL,
    data_hash TEXT NOT NULL
);
`,
		Down: `DROP TABLE IF EXISTS sync_state;`,
	},
}

var postgresDialect = dialect{
	name:          "postgres",
	tableExists:   "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_version'",
	insertVersion: "INSERT INTO schema_version (version) VALUES ($1)",
	deleteVersion: "DELETE FROM schema_version WHERE version = $1",
	migrations:    postgresMigrations,
}

// PostgresOptions tunes the connection pool
type PostgresOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// PostgresStorage implements the Storage interface on PostGIS
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects to dsn and applies migrations
func NewPostgresStorage(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := applyMigrations(ctx, db, postgresDialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *PostgresStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx, storage: s}, nil
}

func (s *PostgresStorage) upsertFeatureWithQuerier(ctx context.Context, q querier, f *Feature) (types.Outcome, error) {
	geom, props, err := encodeFeature(f)
	if err != nil {
		return types.OutcomeRejected, err
	}
	if f.SRID == 0 {
		f.SRID = types.SRID4326
	}

	query := `
		INSERT INTO geo_features (feature_id, geometry, properties, created_at, updated_at)
		VALUES ($1, ST_SetSRID(ST_GeomFromGeoJSON($2), $3), $4::json, $5, $5)
		ON CONFLICT (feature_id) DO UPDATE SET
			geometry = EXCLUDED.geometry,
			properties = EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted
	`
	now := time.Now().UTC()
	var inserted bool
	err = q.QueryRowContext(ctx, query, f.FeatureID, geom, f.SRID, props, now).Scan(&f.ID, &inserted)
	if err != nil {
		return types.OutcomeRejected, fmt.Errorf("failed to upsert feature %s: %w", f.FeatureID, err)
	}
	f.UpdatedAt = now
	if inserted {
		f.CreatedAt = now
		return types.OutcomeInserted, nil
	}
	return types.OutcomeUpdated, nil
}

func (s *PostgresStorage) UpsertFeature(ctx context.Context, f *Feature) (types.Outcome, error) {
	return s.upsertFeatureWithQuerier(ctx, s.db, f)
}

const selectPostgresFeature = `
	SELECT id, feature_id, ST_AsGeoJSON(geometry, 15), ST_SRID(geometry), properties::text, created_at, updated_at
	FROM geo_features
`

func (s *PostgresStorage) getFeatureWithQuerier(ctx context.Context, q querier, featureID string) (*Feature, error) {
	f, err := scanFeature(q.QueryRowContext(ctx, selectPostgresFeature+` WHERE feature_id = $1`, featureID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *PostgresStorage) GetFeature(ctx context.Context, featureID string) (*Feature, error) {
	return s.getFeatureWithQuerier(ctx, s.db, featureID)
}

func (s *PostgresStorage) deleteFeatureWithQuerier(ctx context.Context, q querier, featureID string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM geo_features WHERE feature_id = $1`, featureID)
	if err != nil {
		return fmt.Errorf("failed to delete feature %s: %w", featureID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteFeature(ctx context.Context, featureID string) error {
	return s.deleteFeatureWithQuerier(ctx, s.db, featureID)
}

func (s *PostgresStorage) listFeaturesWithQuerier(ctx context.Context, q querier, opts ListOptions) ([]*Feature, error) {
	var limit interface{} // NULL means no limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := q.QueryContext(ctx, selectPostgresFeature+` ORDER BY feature_id LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	features := make([]*Feature, 0)
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

func (s *PostgresStorage) ListFeatures(ctx context.Context, opts ListOptions) ([]*Feature, error) {
	return s.listFeaturesWithQuerier(ctx, s.db, opts)
}

func (s *PostgresStorage) countFeaturesWithQuerier(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM geo_features`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStorage) CountFeatures(ctx context.Context) (int, error) {
	return s.countFeaturesWithQuerier(ctx, s.db)
}

func (s *PostgresStorage) replaceAllWithQuerier(ctx context.Context, q querier, features []*Feature) (int, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM geo_features`); err != nil {
		return 0, fmt.Errorf("failed to clear features: %w", err)
	}
	for _, f := range features {
		if _, err := s.upsertFeatureWithQuerier(ctx, q, f); err != nil {
			return 0, err
		}
	}
	return s.countFeaturesWithQuerier(ctx, q)
}

// ReplaceAll runs the replacement in its own transaction
func (s *PostgresStorage) ReplaceAll(ctx context.Context, features []*Feature) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	n, err := s.replaceAllWithQuerier(ctx, tx, features)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit replace: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) getSyncStateWithQuerier(ctx context.Context, q querier, source string) (*SyncState, error) {
	var st SyncState
	err := q.QueryRowContext(ctx,
		`SELECT source, last_sync, data_hash FROM sync_state WHERE source = $1`, source,
	).Scan(&st.Source, &st.LastSync, &st.DataHash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStorage) GetSyncState(ctx context.Context, source string) (*SyncState, error) {
	return s.getSyncStateWithQuerier(ctx, s.db, source)
}

func (s *PostgresStorage) saveSyncStateWithQuerier(ctx context.Context, q querier, st *SyncState) error {
	query := `
		INSERT INTO sync_state (source, last_sync, data_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (source) DO UPDATE SET
			last_sync = EXCLUDED.last_sync,
			data_hash = EXCLUDED.data_hash
	`
	if _, err := q.ExecContext(ctx, query, st.Source, st.LastSync.UTC(), st.DataHash); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveSyncState(ctx context.Context, st *SyncState) error {
	return s.saveSyncStateWithQuerier(ctx, s.db, st)
}

// postgresTx wraps a SQL transaction. A failed statement aborts a PostgreSQL
// transaction, so each upsert runs under its own savepoint.
type postgresTx struct {
	tx      *sql.Tx
	storage *PostgresStorage
}

func (t *postgresTx) Commit() error {
	return t.tx.Commit()
}

func (t *postgresTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *postgresTx) UpsertFeature(ctx context.Context, f *Feature) (types.Outcome, error) {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT feature_upsert`); err != nil {
		return types.OutcomeRejected, fmt.Errorf("failed to create savepoint: %w", err)
	}
	outcome, err := t.storage.upsertFeatureWithQuerier(ctx, t.tx, f)
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT feature_upsert`); rbErr != nil {
			return types.OutcomeRejected, fmt.Errorf("%w (savepoint rollback: %v)", err, rbErr)
		}
		return types.OutcomeRejected, err
	}
	if _, err := t.tx.ExecContext(ctx, `RELEASE SAVEPOINT feature_upsert`); err != nil {
		return types.OutcomeRejected, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return outcome, nil
}

func (t *postgresTx) GetFeature(ctx context.Context, featureID string) (*Feature, error) {
	return t.storage.getFeatureWithQuerier(ctx, t.tx, featureID)
}

func (t *postgresTx) DeleteFeature(ctx context.Context, featureID string) error {
	return t.storage.deleteFeatureWithQuerier(ctx, t.tx, featureID)
}

func (t *postgresTx) ListFeatures(ctx context.Context, opts ListOptions) ([]*Feature, error) {
	return t.storage.listFeaturesWithQuerier(ctx, t.tx, opts)
}

func (t *postgresTx) CountFeatures(ctx context.Context) (int, error) {
	return t.storage.countFeaturesWithQuerier(ctx, t.tx)
}

func (t *postgresTx) ReplaceAll(ctx context.Context, features []*Feature) (int, error) {
	return t.storage.replaceAllWithQuerier(ctx, t.tx, features)
}

func (t *postgresTx) GetSyncState(ctx context.Context, source string) (*SyncState, error) {
	return t.storage.getSyncStateWithQuerier(ctx, t.tx, source)
}

func (t *postgresTx) SaveSyncState(ctx context.Context, st *SyncState) error {
	return t.storage.saveSyncStateWithQuerier(ctx, t.tx, st)
}

func (t *postgresTx) Close() error {
	return nil
}

func (t *postgresTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/geosync/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNestedTx is returned by BeginTx on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite has a single writer; chunk transactions queue on this connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Feature operations

// upsertFeatureWithQuerier inserts or updates by feature_id and reports which
func (s *SQLiteStorage) upsertFeatureWithQuerier(ctx context.Context, q querier, f *Feature) (types.Outcome, error) {
	geom, props, err := encodeFeature(f)
	if err != nil {
		return types.OutcomeRejected, err
	}
	if f.SRID == 0 {
		f.SRID = types.SRID4326
	}

	var existing int64
	err = q.QueryRowContext(ctx, `SELECT id FROM geo_features WHERE feature_id = ?`, f.FeatureID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return types.OutcomeRejected, fmt.Errorf("failed to look up feature %s: %w", f.FeatureID, err)
	}
	outcome := types.OutcomeInserted
	if err == nil {
		outcome = types.OutcomeUpdated
	}

	query := `
		INSERT INTO geo_features (feature_id, geometry_type, geometry, srid, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_id) DO UPDATE SET
			geometry_type = excluded.geometry_type,
			geometry = excluded.geometry,
			srid = excluded.srid,
			properties = excluded.properties,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now().UTC()
	err = q.QueryRowContext(ctx, query,
		f.FeatureID, string(f.Geometry.Type), geom, f.SRID, props, now, now,
	).Scan(&f.ID)
	if err != nil {
		return types.OutcomeRejected, fmt.Errorf("failed to upsert feature %s: %w", f.FeatureID, err)
	}
	if outcome == types.OutcomeInserted {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return outcome, nil
}

func (s *SQLiteStorage) UpsertFeature(ctx context.Context, f *Feature) (types.Outcome, error) {
	return s.upsertFeatureWithQuerier(ctx, s.querier(), f)
}

const selectFeature = `
	SELECT id, feature_id, geometry, srid, properties, created_at, updated_at
	FROM geo_features
`

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeature(sc scanner) (*Feature, error) {
	var f Feature
	var geom, props string
	if err := sc.Scan(&f.ID, &f.FeatureID, &geom, &f.SRID, &props, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeFeature(&f, geom, props); err != nil {
		return nil, err
	}
	return &f, nil
}

// getFeatureWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getFeatureWithQuerier(ctx context.Context, q querier, featureID string) (*Feature, error) {
	f, err := scanFeature(q.QueryRowContext(ctx, selectFeature+` WHERE feature_id = ?`, featureID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *SQLiteStorage) GetFeature(ctx context.Context, featureID string) (*Feature, error) {
	return s.getFeatureWithQuerier(ctx, s.querier(), featureID)
}

// deleteFeatureWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteFeatureWithQuerier(ctx context.Context, q querier, featureID string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM geo_features WHERE feature_id = ?`, featureID)
	if err != nil {
		return fmt.Errorf("failed to delete feature %s: %w", featureID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteFeature(ctx context.Context, featureID string) error {
	return s.deleteFeatureWithQuerier(ctx, s.querier(), featureID)
}

// listFeaturesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listFeaturesWithQuerier(ctx context.Context, q querier, opts ListOptions) ([]*Feature, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := q.QueryContext(ctx, selectFeature+` ORDER BY feature_id LIMIT ? OFFSET ?`, limit, opts.Offset)
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

func (s *SQLiteStorage) ListFeatures(ctx context.Context, opts ListOptions) ([]*Feature, error) {
	return s.listFeaturesWithQuerier(ctx, s.querier(), opts)
}

// countFeaturesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) countFeaturesWithQuerier(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM geo_features`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStorage) CountFeatures(ctx context.Context) (int, error) {
	return s.countFeaturesWithQuerier(ctx, s.querier())
}

// replaceAllWithQuerier clears the table and upserts features in order, so a
// repeated feature id keeps its last occurrence.
func (s *SQLiteStorage) replaceAllWithQuerier(ctx context.Context, q querier, features []*Feature) (int, error) {
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
func (s *SQLiteStorage) ReplaceAll(ctx context.Context, features []*Feature) (int, error) {
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

// Sync state operations

// getSyncStateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSyncStateWithQuerier(ctx context.Context, q querier, source string) (*SyncState, error) {
	var st SyncState
	err := q.QueryRowContext(ctx,
		`SELECT source, last_sync, data_hash FROM sync_state WHERE source = ?`, source,
	).Scan(&st.Source, &st.LastSync, &st.DataHash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStorage) GetSyncState(ctx context.Context, source string) (*SyncState, error) {
	return s.getSyncStateWithQuerier(ctx, s.querier(), source)
}

// saveSyncStateWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) saveSyncStateWithQuerier(ctx context.Context, q querier, st *SyncState) error {
	query := `
		INSERT INTO sync_state (source, last_sync, data_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			last_sync = excluded.last_sync,
			data_hash = excluded.data_hash
	`
	if _, err := q.ExecContext(ctx, query, st.Source, st.LastSync.UTC(), st.DataHash); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveSyncState(ctx context.Context, st *SyncState) error {
	return s.saveSyncStateWithQuerier(ctx, s.querier(), st)
}

// Transaction method implementations

func (t *sqliteTx) UpsertFeature(ctx context.Context, f *Feature) (types.Outcome, error) {
	return t.storage.upsertFeatureWithQuerier(ctx, t.querier(), f)
}

func (t *sqliteTx) GetFeature(ctx context.Context, featureID string) (*Feature, error) {
	return t.storage.getFeatureWithQuerier(ctx, t.querier(), featureID)
}

func (t *sqliteTx) DeleteFeature(ctx context.Context, featureID string) error {
	return t.storage.deleteFeatureWithQuerier(ctx, t.querier(), featureID)
}

func (t *sqliteTx) ListFeatures(ctx context.Context, opts ListOptions) ([]*Feature, error) {
	return t.storage.listFeaturesWithQuerier(ctx, t.querier(), opts)
}

func (t *sqliteTx) CountFeatures(ctx context.Context) (int, error) {
	return t.storage.countFeaturesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ReplaceAll(ctx context.Context, features []*Feature) (int, error) {
	return t.storage.replaceAllWithQuerier(ctx, t.querier(), features)
}

func (t *sqliteTx) GetSyncState(ctx context.Context, source string) (*SyncState, error) {
	return t.storage.getSyncStateWithQuerier(ctx, t.querier(), source)
}

func (t *sqliteTx) SaveSyncState(ctx context.Context, st *SyncState) error {
	return t.storage.saveSyncStateWithQuerier(ctx, t.querier(), st)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}

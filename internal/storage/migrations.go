package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// dialect holds the backend-specific statements used by the migrator
type dialect struct {
	name          string
	tableExists   string
	insertVersion string
	deleteVersion string
	migrations    []Migration
}

// AllMigrations contains all SQLite migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Features keyed by external feature id; geometry is GeoJSON text in EPSG:4326
CREATE TABLE IF NOT EXISTS geo_features (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT NOT NULL UNIQUE,
    geometry_type TEXT NOT NULL,
    geometry TEXT NOT NULL,
    srid INTEGER NOT NULL DEFAULT 4326,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_geo_features_type ON geo_features(geometry_type);
CREATE INDEX IF NOT EXISTS idx_geo_features_updated ON geo_features(updated_at);
`

const migrationV1Down = `
DROP TABLE IF EXISTS geo_features;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
-- Content hash of the last successful sync per source
CREATE TABLE IF NOT EXISTS sync_state (
    source TEXT PRIMARY KEY,
    last_sync TIMESTAMP NOT NULL,
    data_hash TEXT NOT NULL
);
`

const migrationV11Down = `
DROP TABLE IF EXISTS sync_state;
`

var sqliteDialect = dialect{
	name:          "sqlite",
	tableExists:   "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
	insertVersion: "INSERT INTO schema_version (version) VALUES (?)",
	deleteVersion: "DELETE FROM schema_version WHERE version = ?",
	migrations:    AllMigrations,
}

// ApplyMigrations runs all pending SQLite migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	return applyMigrations(ctx, db, sqliteDialect)
}

// RollbackMigration rolls back the most recent SQLite migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	return rollbackMigration(ctx, db, sqliteDialect)
}

// SchemaVersion returns the highest applied migration version, or 0.0.0
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	return schemaVersion(ctx, db, sqliteDialect)
}

func schemaVersion(ctx context.Context, db *sql.DB, d dialect) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, d.tableExists).Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// applied_at has second resolution, so order by semver rather than time
	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		parsed, err := semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", v, err)
		}
		if parsed.GreaterThan(current) {
			current = parsed
		}
	}
	return current, rows.Err()
}

func applyMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	currentVersion, err := schemaVersion(ctx, db, d)
	if err != nil {
		return err
	}

	for _, migration := range d.migrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply %s migration %s: %w", d.name, migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, d.insertVersion, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		currentVersion = migrationVersion
	}
	return nil
}

func rollbackMigration(ctx context.Context, db *sql.DB, d dialect) error {
	current, err := schemaVersion(ctx, db, d)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range d.migrations {
		v, err := semver.NewVersion(d.migrations[i].Version)
		if err == nil && v.Equal(current) {
			migration = &d.migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}
	// the first migration drops schema_version itself
	if _, err := db.ExecContext(ctx, d.deleteVersion, migration.Version); err != nil && migration != &d.migrations[0] {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}
	return nil
}

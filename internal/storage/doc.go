// Package storage persists normalized GeoJSON features and per-source sync
// state.
//
// Two backends implement the Storage interface:
//   - SQLiteStorage keeps geometry as GeoJSON text (default, no server needed)
//   - PostgresStorage writes PostGIS geometry(Geometry, 4326) columns
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations, compared as semver
//   - geo_features: one row per feature_id with geometry, srid and properties
//   - sync_state: source URL, time and content hash of the last sync
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("geosync.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	outcome, err := tx.UpsertFeature(ctx, storage.NewFeature("7", geom, props))
//	if err != nil {
//	    _ = tx.Rollback()
//	    return err
//	}
//	return tx.Commit()
//
// UpsertFeature reports whether the row was inserted or updated. A failed
// upsert inside a transaction leaves earlier writes of that transaction intact
// so the caller decides whether to commit the rest.
//
// # Build Modes
//
// The SQLite driver is chosen at build time:
//
//	go build                     # modernc.org/sqlite (pure Go)
//	go build -tags sqlite_cgo    # github.com/mattn/go-sqlite3
package storage

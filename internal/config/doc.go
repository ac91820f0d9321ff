// Package config loads runtime settings from an optional .env file and the
// process environment.
//
// Recognized variables:
//
//	GEOSYNC_SOURCE_URL       source FeatureCollection (falls back to GEOJSON_URL)
//	GEOSYNC_STORE            sqlite (default) or postgres
//	GEOSYNC_DB_PATH          SQLite database file
//	GEOSYNC_CHUNK_SIZE       features per chunk
//	GEOSYNC_FEATURE_WORKERS  concurrent features inside one chunk
//	GEOSYNC_CHUNK_WORKERS    concurrent chunks
//	GEOSYNC_FETCH_ATTEMPTS   download attempts before giving up
//	GEOSYNC_FETCH_TIMEOUT    per-attempt timeout (Go duration)
//	GEOSYNC_BACKUP_DIR       directory for downloaded payload backups
//	GEOSYNC_STATUS_FILE      durable run status snapshot
//	GEOSYNC_METRICS_ADDR     listen address of the status/metrics server
//	GEOSYNC_SAMPLE_INTERVAL  CPU/RSS sampling period
//	GEOSYNC_INTERVAL         scheduled ingestion period for serve (0 disables)
//	GEOSYNC_CACHE_SIZE       normalized geometry cache entries
//	PG_HOST PG_PORT PG_USER PG_PASSWORD PG_DB PG_SSLMODE
//	PG_MAX_OPEN_CONNS PG_MAX_IDLE_CONNS
//	REDIS_HOST REDIS_PORT REDIS_PASS REDIS_DB REDIS_STATUS_KEY
//	LOG_LEVEL LOG_FORMAT
package config

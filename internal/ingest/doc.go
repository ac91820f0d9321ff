// Package ingest runs the chunked, parallel ingestion of a GeoJSON document
// into the feature store.
//
// # Basic Usage
//
//	coord := ingest.New(store, fetcher.New("data_backups", collector),
//	    ingest.WithMonitor(monitor),
//	    ingest.WithMetrics(collector),
//	)
//
//	summary, err := coord.Run(ctx, url)
//	if err != nil {
//	    return err // fetch failed, nothing was written
//	}
//	fmt.Printf("%d/%d features stored\n", summary.Succeeded, summary.Total)
//
// # Pipeline
//
//  1. Fetch: download with retries, back up the raw bytes, parse
//  2. Split: consecutive chunks of ChunkSize features in source order
//  3. Dispatch: at most ChunkWorkers chunks in flight
//  4. Chunk: one transaction, FeatureWorkers goroutines, commit or roll back
//  5. Aggregate: totals, progress snapshot and processing speed per chunk
//
// # Failure Isolation
//
// A rejected feature (missing geometry or properties, invalid geometry, store
// error) is logged and counted; its siblings continue. A chunk whose commit
// fails reports zero successes even though its features were attempted. A
// panic inside a chunk becomes a zero-success chunk result. Only a fetch
// failure fails the whole run.
//
// Features without an id get a generated UUID that does not collide with any
// id in the document.
//
// # Concurrency
//
// Feature workers of one chunk share its transaction through a mutex, so store
// calls within a chunk never overlap. Runs are single-flight: a second Run or
// Ingest while one is active returns ErrRunInProgress.
package ingest

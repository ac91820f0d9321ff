// Package fetcher downloads GeoJSON FeatureCollections with a durable backup.
//
// Fetch streams the response body into a temporary file in the backup
// directory while computing a SHA-256 digest and byte count in the same pass.
// Once the body is complete the file is renamed to
// geojson_backup_<UTC timestamp>.json and then parsed from disk. Backups are
// never removed, including when the payload turns out not to be a valid
// FeatureCollection.
//
// Errors wrap one of two sentinels:
//
//	types.ErrNetwork         transport failure, timeout or non-2xx status
//	types.ErrInvalidPayload  body is not a FeatureCollection
//
// FetchWithRetry retries only network failures, sleeping between attempts
// according to a RetryPolicy:
//
//	f := fetcher.New("data_backups", collector,
//	    fetcher.WithRetryPolicy(fetcher.DefaultRetryPolicy()))
//	doc, err := f.FetchWithRetry(ctx, url)
//	if errors.Is(err, types.ErrNetwork) {
//	    // every attempt failed
//	}
package fetcher

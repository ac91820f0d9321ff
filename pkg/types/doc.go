// Package types provides the shared domain types of the geosync pipeline.
//
// # Features
//
// A Feature is one member of a GeoJSON FeatureCollection as it arrived from the
// source. Its geometry is kept as raw JSON until the normalizer decodes it, and
// its properties are an ordered mapping whose values are preserved verbatim:
//
//	var f types.Feature
//	_ = json.Unmarshal([]byte(`{"type":"Feature","id":7,
//	    "geometry":{"type":"Point","coordinates":[77.5,12.9,900]},
//	    "properties":{"name":"Bengaluru","pop":8443675}}`), &f)
//
//	f.ID                    // "7"
//	f.Properties.Keys()     // [name pop]
//
// # Geometries
//
// Geometry is a tagged value over the GeoJSON geometry types. Positions are
// float64 slices; the pipeline only persists two-dimensional positions in
// EPSG:4326 (SRID4326):
//
//	g.HasZ()       // true if any position has a third ordinate
//	g.Force2D()    // deep copy with x/y only
//
// # Results
//
// ProcessingResult (per feature), ChunkResult (per chunk) and RunSummary (per
// run) carry the outcome of an ingestion. A chunk whose commit fails reports
// zero successes even if every feature in it was written inside the
// transaction.
//
// # Errors
//
// The error taxonomy is a set of sentinels (ErrNetwork, ErrInvalidPayload,
// ErrInvalidGeometry, ErrFeatureRejected, ErrCommitFailed, ErrUpdateFailed)
// wrapped with %w and matched with errors.Is.
package types

// Package geometry validates and normalizes feature geometries before they are
// written to a store.
//
// Normalize runs one fixed pipeline per geometry:
//
//  1. decode the GeoJSON object into a types.Geometry
//  2. drop the z ordinate from every position (x/y are kept unchanged)
//  3. validate with the topology engine
//  4. if invalid, apply one zero-width buffer repair and validate again
//
// A geometry still invalid after the repair is returned with an error wrapping
// types.ErrInvalidGeometry. Coordinates are assumed to be EPSG:4326 and are
// never reprojected.
//
// # Topology engines
//
// The engine is selected at build time, following the storage package's driver
// selection:
//
//	go build ./...              pure Go checks (default)
//	go build -tags geos ./...   GEOS via github.com/twpayne/go-geos (needs libgeos)
//
// The pure Go engine checks finite coordinates, minimum position counts, ring
// closure, zero-area rings and ring self-intersection. Its repair removes
// consecutive duplicate positions, closes open rings and drops collapsed rings
// and parts. It does not check hole containment or overlap between polygons of
// a MultiPolygon; the GEOS engine does.
//
// # Caching
//
// Results are memoized in an LRU cache keyed by the SHA-256 of the raw geometry
// bytes, so collections that repeat a shape pay for validation once. Cached
// geometries are copied on the way out.
package geometry

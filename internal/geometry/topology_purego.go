//go:build !geos

package geometry

// Built without the geos tag: validation and repair are implemented in Go.
//
// Build command:
//   go build ./...

import (
	"github.com/dshills/geosync/pkg/types"
)

// EngineName identifies the compiled topology engine.
const EngineName = "purego"

type planarTopology struct{}

func newTopology() topology { return planarTopology{} }

func (planarTopology) Validate(g types.Geometry) error {
	return validatePlanar(g)
}

// Repair approximates a zero-width buffer for the defects it can fix locally.
func (planarTopology) Repair(g types.Geometry) (types.Geometry, error) {
	out, ok := repairPlanar(g)
	if !ok {
		return types.Geometry{}, errEmptyResult
	}
	return out, nil
}

// repairPlanar returns false when nothing of g survives.
func repairPlanar(g types.Geometry) (types.Geometry, bool) {
	switch g.Type {
	case types.GeometryLineString:
		line := dedupe(g.Line)
		return types.Geometry{Type: g.Type, Line: line}, len(line) >= 2

	case types.GeometryMultiLineString:
		var lines [][]types.Position
		for _, l := range g.Rings {
			if l = dedupe(l); len(l) >= 2 {
				lines = append(lines, l)
			}
		}
		return types.Geometry{Type: g.Type, Rings: lines}, len(lines) > 0

	case types.GeometryPolygon:
		rings, ok := repairPolygon(g.Rings)
		return types.Geometry{Type: g.Type, Rings: rings}, ok

	case types.GeometryMultiPolygon:
		var polys [][][]types.Position
		for _, p := range g.Polygons {
			if rings, ok := repairPolygon(p); ok {
				polys = append(polys, rings)
			}
		}
		return types.Geometry{Type: g.Type, Polygons: polys}, len(polys) > 0

	case types.GeometryCollection:
		var members []types.Geometry
		for _, child := range g.Geometries {
			if fixed, ok := repairPlanar(child); ok {
				members = append(members, fixed)
			}
		}
		return types.Geometry{Type: g.Type, Geometries: members}, len(members) > 0

	default:
		return g, true
	}
}

// repairPolygon closes and deduplicates rings, dropping collapsed holes. A
// collapsed exterior collapses the polygon.
func repairPolygon(rings [][]types.Position) ([][]types.Position, bool) {
	var out [][]types.Position
	for i, ring := range rings {
		r := closeRing(dedupe(ring))
		if len(r) < 4 || signedArea(r) == 0 {
			if i == 0 {
				return nil, false
			}
			continue
		}
		out = append(out, r)
	}
	return out, len(out) > 0
}

func closeRing(ring []types.Position) []types.Position {
	if len(ring) < 2 || samePoint(ring[0], ring[len(ring)-1]) {
		return ring
	}
	closed := make([]types.Position, len(ring), len(ring)+1)
	copy(closed, ring)
	return append(closed, ring[0])
}

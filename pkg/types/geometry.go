package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GeometryType is the GeoJSON type tag of a geometry
type GeometryType string

const (
	GeometryPoint           GeometryType = "Point"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryLineString      GeometryType = "LineString"
	GeometryMultiLineString GeometryType = "MultiLineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPolygon    GeometryType = "MultiPolygon"
	GeometryCollection      GeometryType = "GeometryCollection"
)

// Position is one coordinate tuple: x (longitude), y (latitude) and an
// optional z. Normalized geometries only hold two-element positions.
type Position []float64

// Geometry is a tagged geometry value. Exactly one coordinate field is used,
// selected by Type:
//
//	Point                         -> Point
//	MultiPoint, LineString        -> Line
//	MultiLineString, Polygon      -> Rings
//	MultiPolygon                  -> Polygons
//	GeometryCollection            -> Geometries
type Geometry struct {
	Type       GeometryType
	Point      Position
	Line       []Position
	Rings      [][]Position
	Polygons   [][][]Position
	Geometries []Geometry
}

// ErrUnknownGeometryType is returned when decoding a type tag outside the
// GeoJSON geometry set.
var ErrUnknownGeometryType = errors.New("unknown geometry type")

type rawGeometry struct {
	Type        GeometryType      `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates,omitempty"`
	Geometries  []json.RawMessage `json:"geometries,omitempty"`
}

// UnmarshalJSON decodes a GeoJSON geometry object.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*g = Geometry{Type: raw.Type}
	switch raw.Type {
	case GeometryPoint:
		return decodeCoordinates(raw.Coordinates, &g.Point)
	case GeometryMultiPoint, GeometryLineString:
		return decodeCoordinates(raw.Coordinates, &g.Line)
	case GeometryMultiLineString, GeometryPolygon:
		return decodeCoordinates(raw.Coordinates, &g.Rings)
	case GeometryMultiPolygon:
		return decodeCoordinates(raw.Coordinates, &g.Polygons)
	case GeometryCollection:
		g.Geometries = make([]Geometry, 0, len(raw.Geometries))
		for i, member := range raw.Geometries {
			var child Geometry
			if err := json.Unmarshal(member, &child); err != nil {
				return fmt.Errorf("geometries[%d]: %w", i, err)
			}
			g.Geometries = append(g.Geometries, child)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGeometryType, raw.Type)
	}
}

func decodeCoordinates(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || isJSONNull(raw) {
		return errors.New("coordinates are required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("coordinates: %w", err)
	}
	return nil
}

// MarshalJSON encodes the geometry as a GeoJSON object.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Type == GeometryCollection {
		members := g.Geometries
		if members == nil {
			members = []Geometry{}
		}
		return json.Marshal(struct {
			Type       GeometryType `json:"type"`
			Geometries []Geometry   `json:"geometries"`
		}{g.Type, members})
	}

	var coords interface{}
	switch g.Type {
	case GeometryPoint:
		coords = g.Point
	case GeometryMultiPoint, GeometryLineString:
		coords = g.Line
	case GeometryMultiLineString, GeometryPolygon:
		coords = g.Rings
	case GeometryMultiPolygon:
		coords = g.Polygons
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGeometryType, g.Type)
	}
	return json.Marshal(struct {
		Type        GeometryType `json:"type"`
		Coordinates interface{}  `json:"coordinates"`
	}{g.Type, coords})
}

// HasZ reports whether any position carries a third ordinate.
func (g Geometry) HasZ() bool {
	found := false
	g.eachPosition(func(p Position) {
		if len(p) > 2 {
			found = true
		}
	})
	return found
}

// Force2D returns a deep copy with every position truncated to x/y.
func (g Geometry) Force2D() Geometry {
	out := Geometry{Type: g.Type}
	if g.Point != nil {
		out.Point = flatten(g.Point)
	}
	if g.Line != nil {
		out.Line = flattenLine(g.Line)
	}
	if g.Rings != nil {
		out.Rings = flattenRings(g.Rings)
	}
	if g.Polygons != nil {
		out.Polygons = make([][][]Position, len(g.Polygons))
		for i, poly := range g.Polygons {
			out.Polygons[i] = flattenRings(poly)
		}
	}
	if g.Geometries != nil {
		out.Geometries = make([]Geometry, len(g.Geometries))
		for i, child := range g.Geometries {
			out.Geometries[i] = child.Force2D()
		}
	}
	return out
}

// NumPositions counts every position in the geometry.
func (g Geometry) NumPositions() int {
	n := 0
	g.eachPosition(func(Position) { n++ })
	return n
}

func (g Geometry) eachPosition(fn func(Position)) {
	if g.Point != nil {
		fn(g.Point)
	}
	for _, p := range g.Line {
		fn(p)
	}
	for _, ring := range g.Rings {
		for _, p := range ring {
			fn(p)
		}
	}
	for _, poly := range g.Polygons {
		for _, ring := range poly {
			for _, p := range ring {
				fn(p)
			}
		}
	}
	for _, child := range g.Geometries {
		child.eachPosition(fn)
	}
}

func flatten(p Position) Position {
	n := len(p)
	if n > 2 {
		n = 2
	}
	out := make(Position, n)
	copy(out, p[:n])
	return out
}

func flattenLine(line []Position) []Position {
	out := make([]Position, len(line))
	for i, p := range line {
		out[i] = flatten(p)
	}
	return out
}

func flattenRings(rings [][]Position) [][]Position {
	out := make([][]Position, len(rings))
	for i, ring := range rings {
		out[i] = flattenLine(ring)
	}
	return out
}

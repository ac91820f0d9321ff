package geometry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/geosync/pkg/types"
)

var (
	errShortLine      = errors.New("line needs at least 2 distinct positions")
	errNoShell        = errors.New("polygon needs an exterior ring")
	errShortRing      = errors.New("ring needs at least 4 positions")
	errOpenRing       = errors.New("ring is not closed")
	errZeroArea       = errors.New("ring has zero area")
	errSelfIntersects = errors.New("ring self-intersection")
)

// validatePlanar runs the pure Go checks over a 2-D geometry.
func validatePlanar(g types.Geometry) error {
	if err := checkFinite(g); err != nil {
		return err
	}
	switch g.Type {
	case types.GeometryPoint:
		if g.Point == nil {
			return errShortPos
		}
		return nil
	case types.GeometryMultiPoint:
		return nil
	case types.GeometryLineString:
		return checkLine(g.Line)
	case types.GeometryMultiLineString:
		for i, line := range g.Rings {
			if err := checkLine(line); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}
		return nil
	case types.GeometryPolygon:
		return checkPolygon(g.Rings)
	case types.GeometryMultiPolygon:
		for i, poly := range g.Polygons {
			if err := checkPolygon(poly); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	case types.GeometryCollection:
		for i, child := range g.Geometries {
			if err := validatePlanar(child); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
		}
		return nil
	default:
		return typeError(g.Type)
	}
}

func checkLine(line []types.Position) error {
	if len(dedupe(line)) < 2 {
		return errShortLine
	}
	return nil
}

func checkPolygon(rings [][]types.Position) error {
	if len(rings) == 0 {
		return errNoShell
	}
	for i, ring := range rings {
		if err := checkRing(ring); err != nil {
			if i == 0 {
				return fmt.Errorf("exterior: %w", err)
			}
			return fmt.Errorf("hole %d: %w", i, err)
		}
	}
	return nil
}

func checkRing(ring []types.Position) error {
	if len(ring) < 4 {
		return errShortRing
	}
	if !samePoint(ring[0], ring[len(ring)-1]) {
		return errOpenRing
	}
	r := dedupe(ring)
	if len(r) < 4 {
		return errShortRing
	}
	if signedArea(r) == 0 {
		return errZeroArea
	}
	if selfIntersects(r) {
		return errSelfIntersects
	}
	return nil
}

type segment struct {
	i          int
	a, b       types.Position
	minX, maxX float64
}

// selfIntersects reports whether two non-adjacent edges of a closed,
// deduplicated ring touch. Edges are swept in x order so only overlapping
// x-ranges are compared.
func selfIntersects(ring []types.Position) bool {
	n := len(ring) - 1 // edge count
	segs := make([]segment, n)
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[i+1]
		lo, hi := a[0], b[0]
		if lo > hi {
			lo, hi = hi, lo
		}
		segs[i] = segment{i: i, a: a, b: b, minX: lo, maxX: hi}
	}
	sort.Slice(segs, func(x, y int) bool { return segs[x].minX < segs[y].minX })

	for x := 0; x < len(segs); x++ {
		s := segs[x]
		for y := x + 1; y < len(segs) && segs[y].minX <= s.maxX; y++ {
			t := segs[y]
			if adjacent(s.i, t.i, n) {
				continue
			}
			if segmentsIntersect(s.a, s.b, t.a, t.b) {
				return true
			}
		}
	}
	return false
}

func adjacent(i, j, n int) bool {
	d := i - j
	if d < 0 {
		d = -d
	}
	return d == 1 || d == n-1
}

func orientation(a, b, c types.Position) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func onSegment(a, b, p types.Position) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(p1, p2, q1, q2 types.Position) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, p2, q2):
		return true
	case o3 == 0 && onSegment(q1, q2, p1):
		return true
	case o4 == 0 && onSegment(q1, q2, p2):
		return true
	}
	return false
}

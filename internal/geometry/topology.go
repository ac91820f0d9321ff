package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/dshills/geosync/pkg/types"
)

// topology validates and repairs decoded 2-D geometries.
type topology interface {
	Validate(g types.Geometry) error
	Repair(g types.Geometry) (types.Geometry, error)
}

var (
	errNonFinite   = errors.New("non-finite coordinate")
	errShortPos    = errors.New("position needs x and y")
	errEmptyResult = errors.New("repair produced an empty geometry")
)

// checkFinite rejects positions with fewer than two ordinates or NaN/Inf values.
func checkFinite(g types.Geometry) error {
	var err error
	walkPositions(g, func(p types.Position) bool {
		if len(p) < 2 {
			err = errShortPos
			return false
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				err = errNonFinite
				return false
			}
		}
		return true
	})
	return err
}

// walkPositions visits positions until fn returns false.
func walkPositions(g types.Geometry, fn func(types.Position) bool) bool {
	if g.Point != nil && !fn(g.Point) {
		return false
	}
	for _, p := range g.Line {
		if !fn(p) {
			return false
		}
	}
	for _, ring := range g.Rings {
		for _, p := range ring {
			if !fn(p) {
				return false
			}
		}
	}
	for _, poly := range g.Polygons {
		for _, ring := range poly {
			for _, p := range ring {
				if !fn(p) {
					return false
				}
			}
		}
	}
	for _, child := range g.Geometries {
		if !walkPositions(child, fn) {
			return false
		}
	}
	return true
}

func samePoint(a, b types.Position) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	return a[0] == b[0] && a[1] == b[1]
}

// dedupe drops consecutive repeated positions.
func dedupe(line []types.Position) []types.Position {
	if len(line) == 0 {
		return line
	}
	out := make([]types.Position, 0, len(line))
	out = append(out, line[0])
	for _, p := range line[1:] {
		if !samePoint(p, out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}

// signedArea is the shoelace area of a closed ring.
func signedArea(ring []types.Position) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

func typeError(t types.GeometryType) error {
	return fmt.Errorf("%w: %q", types.ErrUnknownGeometryType, t)
}

//go:build !geos

package geometry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/geosync/pkg/types"
)

func TestNormalize_RepairsOpenRing(t *testing.T) {
	n := NewNormalizer(nil)
	raw := `{"type":"Polygon","coordinates":[[[0,0],[5,0],[5,5],[0,5]]]}`

	g, err := n.Normalize(json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, g.Rings[0], 5)
	assert.Equal(t, g.Rings[0][0], g.Rings[0][4])
	assert.Equal(t, int64(1), n.Stats().Repaired)
}

func TestNormalize_DropsCollapsedHole(t *testing.T) {
	n := NewNormalizer(nil)
	raw := `{"type":"Polygon","coordinates":[
		[[0,0],[10,0],[10,10],[0,10],[0,0]],
		[[2,2],[3,3],[2,2]]
	]}`

	g, err := n.Normalize(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Len(t, g.Rings, 1)
}

func TestNormalize_DropsCollapsedPart(t *testing.T) {
	n := NewNormalizer(nil)
	raw := `{"type":"MultiPolygon","coordinates":[
		[[[0,0],[1,0],[1,1],[0,1],[0,0]]],
		[[[5,5],[5,5],[5,5],[5,5]]]
	]}`

	g, err := n.Normalize(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Len(t, g.Polygons, 1)
}

func TestNormalize_RejectsBowtie(t *testing.T) {
	n := NewNormalizer(nil)
	raw := `{"type":"Polygon","coordinates":[[[0,0],[10,10],[10,0],[0,6],[0,0]]]}`

	_, err := n.Normalize(json.RawMessage(raw))
	require.ErrorIs(t, err, types.ErrInvalidGeometry)
	assert.Contains(t, err.Error(), "self-intersection")
}

func TestValidatePlanar(t *testing.T) {
	ring := func(pts ...[2]float64) []types.Position {
		out := make([]types.Position, len(pts))
		for i, p := range pts {
			out[i] = types.Position{p[0], p[1]}
		}
		return out
	}

	tests := []struct {
		name    string
		g       types.Geometry
		wantErr error
	}{
		{
			name: "point",
			g:    types.Geometry{Type: types.GeometryPoint, Point: types.Position{1, 2}},
		},
		{
			name: "empty multipoint",
			g:    types.Geometry{Type: types.GeometryMultiPoint},
		},
		{
			name:    "short ring",
			g:       types.Geometry{Type: types.GeometryPolygon, Rings: [][]types.Position{ring([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{0, 0})}},
			wantErr: errShortRing,
		},
		{
			name:    "open ring",
			g:       types.Geometry{Type: types.GeometryPolygon, Rings: [][]types.Position{ring([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 1}, [2]float64{0, 1})}},
			wantErr: errOpenRing,
		},
		{
			name:    "no shell",
			g:       types.Geometry{Type: types.GeometryPolygon},
			wantErr: errNoShell,
		},
		{
			name: "duplicate vertices are valid",
			g: types.Geometry{Type: types.GeometryPolygon, Rings: [][]types.Position{
				ring([2]float64{0, 0}, [2]float64{4, 0}, [2]float64{4, 0}, [2]float64{4, 4}, [2]float64{0, 4}, [2]float64{0, 0}),
			}},
		},
		{
			name: "collection member",
			g: types.Geometry{Type: types.GeometryCollection, Geometries: []types.Geometry{
				{Type: types.GeometryPoint, Point: types.Position{0, 0}},
				{Type: types.GeometryLineString, Line: ring([2]float64{1, 1}, [2]float64{1, 1})},
			}},
			wantErr: errShortLine,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePlanar(tt.g)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSelfIntersects(t *testing.T) {
	pts := func(v ...float64) []types.Position {
		var out []types.Position
		for i := 0; i < len(v); i += 2 {
			out = append(out, types.Position{v[i], v[i+1]})
		}
		return out
	}

	assert.False(t, selfIntersects(pts(0, 0, 4, 0, 4, 4, 0, 4, 0, 0)))
	assert.True(t, selfIntersects(pts(0, 0, 4, 4, 4, 0, 0, 4, 0, 0)))
	// ring touching itself at a vertex
	assert.True(t, selfIntersects(pts(0, 0, 4, 0, 2, 2, 4, 4, 0, 4, 2, 2, 0, 0)))
	// concave but simple
	assert.False(t, selfIntersects(pts(0, 0, 6, 0, 6, 6, 3, 2, 0, 6, 0, 0)))
}

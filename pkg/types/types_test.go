package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureUnmarshal(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantID        string
		wantGeometry  bool
		wantHasProps  bool
		wantPropCount int
	}{
		{
			name:          "string id",
			input:         `{"type":"Feature","id":"a-1","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"k":"v"}}`,
			wantID:        "a-1",
			wantGeometry:  true,
			wantHasProps:  true,
			wantPropCount: 1,
		},
		{
			name:         "numeric id keeps literal",
			input:        `{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`,
			wantID:       "7",
			wantGeometry: true,
			wantHasProps: true,
		},
		{
			name:         "null geometry",
			input:        `{"type":"Feature","geometry":null,"properties":{"a":1}}`,
			wantHasProps: true, wantPropCount: 1,
		},
		{
			name:         "null properties",
			input:        `{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":null}`,
			wantGeometry: true,
		},
		{
			name:  "missing members",
			input: `{"type":"Feature"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Feature
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.wantID, f.ID)
			assert.Equal(t, tt.wantGeometry, f.Geometry != nil)
			assert.Equal(t, tt.wantHasProps, f.HasProperties)
			assert.Equal(t, tt.wantPropCount, f.Properties.Len())
		})
	}
}

func TestFeatureUnmarshalRejectsBadID(t *testing.T) {
	var f Feature
	err := json.Unmarshal([]byte(`{"type":"Feature","id":{"x":1}}`), &f)
	assert.Error(t, err)
}

func TestFeatureMarshalNullMembers(t *testing.T) {
	data, err := json.Marshal(Feature{ID: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Feature","id":"x","geometry":null,"properties":null}`, string(data))
}

func TestPropertiesPreserveOrder(t *testing.T) {
	input := `{"zeta":1,"alpha":{"nested":[1,2]},"mid":"text","n":1.50}`

	var p Properties
	require.NoError(t, json.Unmarshal([]byte(input), &p))
	assert.Equal(t, []string{"zeta", "alpha", "mid", "n"}, p.Keys())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))

	v, ok := p.Get("n")
	require.True(t, ok)
	assert.Equal(t, "1.50", string(v))
}

func TestPropertiesSetReplacesInPlace(t *testing.T) {
	p := NewProperties(
		Property{Key: "a", Value: json.RawMessage(`1`)},
		Property{Key: "b", Value: json.RawMessage(`2`)},
		Property{Key: "a", Value: json.RawMessage(`3`)},
	)
	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":2}`, string(out))

	_, ok := p.Get("missing")
	assert.False(t, ok)
}

func TestPropertiesRejectNonObject(t *testing.T) {
	var p Properties
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &p))
	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Equal(t, 0, p.Len())
}

func TestGeometryRoundTrip(t *testing.T) {
	inputs := []string{
		`{"type":"Point","coordinates":[1.5,2.5]}`,
		`{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
		`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`,
		`{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[3,4]}]}`,
	}
	for _, in := range inputs {
		var g Geometry
		require.NoError(t, json.Unmarshal([]byte(in), &g), in)
		out, err := json.Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, in, string(out))
	}
}

func TestGeometryUnknownType(t *testing.T) {
	var g Geometry
	err := json.Unmarshal([]byte(`{"type":"Circle","coordinates":[0,0]}`), &g)
	assert.True(t, errors.Is(err, ErrUnknownGeometryType))

	err = json.Unmarshal([]byte(`{"type":"Point"}`), &g)
	assert.Error(t, err)
}

func TestGeometryForce2D(t *testing.T) {
	var g Geometry
	require.NoError(t, json.Unmarshal([]byte(
		`{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[1,2,3]},{"type":"LineString","coordinates":[[0,0,5],[1,1,6]]}]}`,
	), &g))
	require.True(t, g.HasZ())
	assert.Equal(t, 3, g.NumPositions())

	flat := g.Force2D()
	assert.False(t, flat.HasZ())
	assert.Equal(t, Position{1, 2}, flat.Geometries[0].Point)
	assert.Equal(t, []Position{{0, 0}, {1, 1}}, flat.Geometries[1].Line)

	// original untouched
	assert.Len(t, g.Geometries[0].Point, 3)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "inserted", OutcomeInserted.String())
	assert.Equal(t, "updated", OutcomeUpdated.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}

func TestProcessingResult(t *testing.T) {
	r := Rejected("f1", ReasonMissingField, fmt.Errorf("%w: geometry", ErrMissingField))
	assert.False(t, r.Succeeded())
	assert.Equal(t, OutcomeRejected, r.Outcome)
	assert.ErrorIs(t, r.Err, ErrMissingField)

	assert.True(t, ProcessingResult{Outcome: OutcomeUpdated}.Succeeded())
}

func TestChunkAndRunSummary(t *testing.T) {
	c := ChunkResult{Attempted: 100, Succeeded: 97, Committed: true}
	assert.Equal(t, 3, c.Failed())

	s := RunSummary{Total: 200, Succeeded: 150, Failed: 50}
	assert.True(t, s.Partial())
	assert.InDelta(t, 75.0, s.SuccessRate(), 0.001)

	assert.False(t, RunSummary{}.Partial())
	assert.Zero(t, RunSummary{}.SuccessRate())
}

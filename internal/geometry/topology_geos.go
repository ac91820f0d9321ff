//go:build geos

package geometry

// Built with the geos tag: validity and the zero-width buffer come from GEOS.
//
// Build command:
//   CGO_ENABLED=1 go build -tags geos ./...
//
// Driver used: github.com/twpayne/go-geos

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"

	"github.com/dshills/geosync/pkg/types"
)

// EngineName identifies the compiled topology engine.
const EngineName = "geos"

const bufferQuadSegs = 8

type geosTopology struct{}

func newTopology() topology { return geosTopology{} }

func toGEOS(g types.Geometry) (*geos.Geom, error) {
	if err := checkFinite(g); err != nil {
		return nil, err
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	geom, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("geos parse: %w", err)
	}
	return geom, nil
}

func (geosTopology) Validate(g types.Geometry) error {
	geom, err := toGEOS(g)
	if err != nil {
		return err
	}
	defer geom.Destroy()

	if !geom.IsValid() {
		return errors.New(geom.IsValidReason())
	}
	return nil
}

func (geosTopology) Repair(g types.Geometry) (types.Geometry, error) {
	geom, err := toGEOS(g)
	if err != nil {
		return types.Geometry{}, err
	}
	defer geom.Destroy()

	buffered := geom.Buffer(0, bufferQuadSegs)
	if buffered == nil {
		return types.Geometry{}, errEmptyResult
	}
	defer buffered.Destroy()
	if buffered.IsEmpty() {
		return types.Geometry{}, errEmptyResult
	}

	var out types.Geometry
	if err := json.Unmarshal([]byte(buffered.ToGeoJSON(-1)), &out); err != nil {
		return types.Geometry{}, fmt.Errorf("decode repaired geometry: %w", err)
	}
	return out.Force2D(), nil
}

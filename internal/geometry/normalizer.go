package geometry

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dshills/geosync/pkg/types"
)

// Stats counts normalizer outcomes since creation
type Stats struct {
	Normalized int64
	Repaired   int64
	Rejected   int64
	CacheHits  int64
}

// Normalizer turns raw GeoJSON geometries into valid 2-D geometries. It is safe
// for concurrent use.
type Normalizer struct {
	topo  topology
	cache *Cache

	normalized atomic.Int64
	repaired   atomic.Int64
	rejected   atomic.Int64
	cacheHits  atomic.Int64
}

// NewNormalizer creates a normalizer on the compiled topology engine. A nil
// cache disables memoization.
func NewNormalizer(cache *Cache) *Normalizer {
	return &Normalizer{topo: newTopology(), cache: cache}
}

// Normalize decodes, flattens, validates and if needed repairs raw. Errors wrap
// types.ErrInvalidGeometry.
func (n *Normalizer) Normalize(raw json.RawMessage) (types.Geometry, error) {
	if len(raw) == 0 {
		n.rejected.Add(1)
		return types.Geometry{}, fmt.Errorf("%w: geometry is empty", types.ErrInvalidGeometry)
	}

	var key string
	if n.cache != nil {
		key = Key(raw)
		if r, ok := n.cache.Get(key); ok {
			n.cacheHits.Add(1)
			n.count(r.Err)
			return r.Geometry, r.Err
		}
	}

	g, err := n.normalize(raw)
	if n.cache != nil {
		n.cache.Set(key, Result{Geometry: g, Err: err})
	}
	n.count(err)
	if err != nil {
		return types.Geometry{}, err
	}
	return g.Force2D(), nil
}

func (n *Normalizer) normalize(raw json.RawMessage) (types.Geometry, error) {
	var decoded types.Geometry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return types.Geometry{}, fmt.Errorf("%w: %v", types.ErrInvalidGeometry, err)
	}
	g := decoded.Force2D()

	// Short or non-finite positions cannot be repaired.
	if err := checkFinite(g); err != nil {
		return types.Geometry{}, fmt.Errorf("%w: %v", types.ErrInvalidGeometry, err)
	}

	verr := n.topo.Validate(g)
	if verr == nil {
		return g, nil
	}

	fixed, err := n.topo.Repair(g)
	if err != nil {
		return types.Geometry{}, fmt.Errorf("%w: %v (repair: %v)", types.ErrInvalidGeometry, verr, err)
	}
	if err := n.topo.Validate(fixed); err != nil {
		return types.Geometry{}, fmt.Errorf("%w: %v after repair", types.ErrInvalidGeometry, err)
	}
	n.repaired.Add(1)
	return fixed, nil
}

func (n *Normalizer) count(err error) {
	if err != nil {
		n.rejected.Add(1)
		return
	}
	n.normalized.Add(1)
}

// Stats returns a snapshot of the counters.
func (n *Normalizer) Stats() Stats {
	return Stats{
		Normalized: n.normalized.Load(),
		Repaired:   n.repaired.Load(),
		Rejected:   n.rejected.Load(),
		CacheHits:  n.cacheHits.Load(),
	}
}

// Engine returns the name of the compiled topology engine.
func (n *Normalizer) Engine() string {
	return EngineName
}

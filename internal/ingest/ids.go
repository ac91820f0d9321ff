package ingest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/geosync/pkg/types"
)

// IDAllocator hands out synthetic feature ids for one run. A generated id never
// equals an external id of the document or an earlier generated id.
type IDAllocator struct {
	mu    sync.Mutex
	used  map[string]struct{}
	newID func() string
}

// NewIDAllocator reserves every external id present in features.
func NewIDAllocator(features []types.Feature) *IDAllocator {
	a := &IDAllocator{
		used:  make(map[string]struct{}, len(features)),
		newID: uuid.NewString,
	}
	for i := range features {
		if features[i].ID != "" {
			a.used[features[i].ID] = struct{}{}
		}
	}
	return a
}

// Next returns a fresh id.
func (a *IDAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		id := a.newID()
		if _, taken := a.used[id]; taken {
			continue
		}
		a.used[id] = struct{}{}
		return id
	}
}

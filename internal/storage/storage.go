package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/geosync/pkg/types"
)

// Storage defines the interface for persisting features and sync state
type Storage interface {
	// Feature operations
	UpsertFeature(ctx context.Context, feature *Feature) (types.Outcome, error)
	GetFeature(ctx context.Context, featureID string) (*Feature, error)
	DeleteFeature(ctx context.Context, featureID string) error
	ListFeatures(ctx context.Context, opts ListOptions) ([]*Feature, error)
	CountFeatures(ctx context.Context) (int, error)

	// ReplaceAll deletes every feature and inserts the given set atomically
	ReplaceAll(ctx context.Context, features []*Feature) (int, error)

	// Sync state operations
	GetSyncState(ctx context.Context, source string) (*SyncState, error)
	SaveSyncState(ctx context.Context, state *SyncState) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Feature is one persisted GeoJSON feature. Geometry is always 2-D in
// EPSG:4326.
type Feature struct {
	ID         int64
	FeatureID  string
	Geometry   types.Geometry
	Properties types.Properties
	SRID       int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewFeature builds a storage feature from normalized parts
func NewFeature(featureID string, geom types.Geometry, props types.Properties) *Feature {
	return &Feature{
		FeatureID:  featureID,
		Geometry:   geom,
		Properties: props,
		SRID:       types.SRID4326,
	}
}

// SyncState records the content hash of the last successful sync of a source
type SyncState struct {
	Source   string
	LastSync time.Time
	DataHash string
}

// ListOptions pages through features ordered by feature id
type ListOptions struct {
	Limit  int // 0 means no limit
	Offset int
}

// encodeFeature returns the GeoJSON geometry and properties text of f
func encodeFeature(f *Feature) (string, string, error) {
	geom, err := json.Marshal(f.Geometry)
	if err != nil {
		return "", "", fmt.Errorf("encode geometry of %s: %w", f.FeatureID, err)
	}
	props, err := json.Marshal(f.Properties)
	if err != nil {
		return "", "", fmt.Errorf("encode properties of %s: %w", f.FeatureID, err)
	}
	return string(geom), string(props), nil
}

// decodeFeature fills geometry and properties of f from stored text
func decodeFeature(f *Feature, geom, props string) error {
	if err := json.Unmarshal([]byte(geom), &f.Geometry); err != nil {
		return fmt.Errorf("decode geometry of %s: %w", f.FeatureID, err)
	}
	if err := json.Unmarshal([]byte(props), &f.Properties); err != nil {
		return fmt.Errorf("decode properties of %s: %w", f.FeatureID, err)
	}
	return nil
}

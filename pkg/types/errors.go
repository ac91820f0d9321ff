package types

import "errors"

// Pipeline error taxonomy. Callers wrap these with fmt.Errorf("...: %w", err)
// and match them with errors.Is.
var (
	// Fetch errors
	ErrNetwork        = errors.New("network error")
	ErrInvalidPayload = errors.New("invalid payload")

	// Geometry errors
	ErrInvalidGeometry = errors.New("invalid geometry")

	// Feature errors
	ErrFeatureRejected = errors.New("feature rejected")
	ErrMissingField    = errors.New("missing field")
	ErrInvalidFeature  = errors.New("invalid feature")

	// Chunk errors
	ErrCommitFailed = errors.New("chunk commit failed")

	// Sync errors
	ErrUpdateFailed = errors.New("sync update failed")
)

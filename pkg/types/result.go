package types

import (
	"fmt"
	"time"
)

// Outcome is the per-feature result of one processing attempt
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

// String returns the outcome name used in logs and metrics
func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Rejection reasons reported in ProcessingResult.Reason
const (
	ReasonMissingField    = "missing field"
	ReasonInvalidGeometry = "invalid geometry"
	ReasonStoreError      = "store error"
	ReasonInvalidFeature  = "invalid feature"
)

// ProcessingResult is produced once per feature and consumed only by the
// chunk aggregator.
type ProcessingResult struct {
	FeatureID string
	Outcome   Outcome
	Reason    string // set when Outcome is OutcomeRejected
	Err       error
}

// Succeeded reports whether the feature was written to the store
func (r ProcessingResult) Succeeded() bool {
	return r.Outcome == OutcomeInserted || r.Outcome == OutcomeUpdated
}

// Rejected builds a rejected result
func Rejected(featureID, reason string, err error) ProcessingResult {
	return ProcessingResult{FeatureID: featureID, Outcome: OutcomeRejected, Reason: reason, Err: err}
}

// ChunkResult summarizes one chunk after its commit attempt. Succeeded is zero
// whenever Committed is false.
type ChunkResult struct {
	Index     int
	Attempted int
	Succeeded int
	Committed bool
	Duration  time.Duration
	Err       error
}

// Failed returns the number of attempted features not durably written
func (c ChunkResult) Failed() int {
	return c.Attempted - c.Succeeded
}

// RunSummary contains the totals of one ingestion run
type RunSummary struct {
	Total        int
	Succeeded    int
	Failed       int
	Chunks       int
	FailedChunks int
	Duration     time.Duration
}

// Partial reports whether some features were not persisted
func (s RunSummary) Partial() bool {
	return s.Succeeded < s.Total
}

// SuccessRate returns the succeeded share in percent
func (s RunSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}

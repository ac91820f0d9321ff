package progress

import "time"

// Status is the lifecycle stage of a run.
type Status string

const (
	StatusNoRun      Status = "No Run"
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// RunState is the snapshot persisted by sinks and served by the status surface.
type RunState struct {
	Status     Status     `json:"status"`
	Total      int        `json:"total_features"`
	Processed  int        `json:"processed_features"`
	Succeeded  int        `json:"successful_features"`
	Failed     int        `json:"failed_features"`
	Percentage float64    `json:"progress_percentage"`
	Partial    bool       `json:"partial,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Error      string     `json:"error,omitempty"`
}

// NoRun returns the state reported before any run has started.
func NoRun() RunState {
	return RunState{Status: StatusNoRun, Timestamp: time.Now().UTC()}
}

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

func percentage(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}

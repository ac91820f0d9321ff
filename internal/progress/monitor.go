package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/geosync/internal/logging"
)

const persistTimeout = 5 * time.Second

// Monitor is the mutex-guarded owner of the current RunState.
type Monitor struct {
	mu     sync.Mutex
	state  RunState
	sinks  []Sink
	logger *slog.Logger
}

// NewMonitor creates a monitor in the No Run state. Nil sinks are skipped.
func NewMonitor(logger *slog.Logger, sinks ...Sink) *Monitor {
	if logger == nil {
		logger = logging.L()
	}
	m := &Monitor{state: NoRun(), logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Prepare resets the state for a new run that has not begun processing.
func (m *Monitor) Prepare() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.state = RunState{Status: StatusNotStarted, StartedAt: &now}
	m.persistLocked()
}

// Start begins processing of total features.
func (m *Monitor) Start(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := time.Now().UTC()
	if m.state.Status == StatusNotStarted && m.state.StartedAt != nil {
		started = *m.state.StartedAt
	}
	m.state = RunState{Status: StatusInProgress, Total: total, StartedAt: &started}
	m.persistLocked()
	m.logger.Info("run_started", "total_features", total)
}

// Update records one feature outcome.
func (m *Monitor) Update(success bool) {
	if success {
		m.Advance(1, 0)
	} else {
		m.Advance(0, 1)
	}
}

// Advance records a batch of outcomes, typically one completed chunk.
func (m *Monitor) Advance(succeeded, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Succeeded += succeeded
	m.state.Failed += failed
	m.state.Processed += succeeded + failed
	m.state.Percentage = percentage(m.state.Processed, m.state.Total)
	m.persistLocked()
	m.logger.Info("run_progress",
		"percentage", m.state.Percentage,
		"processed", m.state.Processed,
		"total", m.state.Total,
	)
}

// Complete marks the run finished and logs the summary.
func (m *Monitor) Complete() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Status = StatusCompleted
	m.state.Partial = m.state.Succeeded < m.state.Total
	m.persistLocked()

	var duration time.Duration
	if m.state.StartedAt != nil {
		duration = m.state.Timestamp.Sub(*m.state.StartedAt)
	}
	m.logger.Info("run_completed",
		"total_features", m.state.Total,
		"successful_features", m.state.Succeeded,
		"failed_features", m.state.Failed,
		"duration_seconds", duration.Seconds(),
		"success_rate", percentage(m.state.Succeeded, m.state.Total),
		"partial", m.state.Partial,
	)
	return m.state
}

// Fail marks the run failed with err.
func (m *Monitor) Fail(err error) RunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Status = StatusFailed
	if err != nil {
		m.state.Error = err.Error()
	}
	m.persistLocked()
	m.logger.Error("run_failed", "error", err)
	return m.state
}

// CurrentStatus returns a copy of the current state.
func (m *Monitor) CurrentStatus() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if s.StartedAt != nil {
		started := *s.StartedAt
		s.StartedAt = &started
	}
	if s.Status == StatusNoRun {
		s.Timestamp = time.Now().UTC()
	}
	return s
}

// persistLocked stamps and writes the snapshot. Sink failures are logged and do
// not interrupt the run.
func (m *Monitor) persistLocked() {
	m.state.Timestamp = time.Now().UTC()
	if len(m.sinks) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, s := range m.sinks {
		if err := s.Save(ctx, m.state); err != nil {
			m.logger.Warn("status_persist_failed", "error", err)
		}
	}
}

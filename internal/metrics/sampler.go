package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dshills/geosync/internal/logging"
)

// Sample is one CPU/RSS reading of the current process.
type Sample struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Sampler periodically reads process CPU and memory into a Collector and logs
// a performance_metrics record each interval.
type Sampler struct {
	collector *Collector
	proc      *process.Process
	interval  time.Duration
	logger    *slog.Logger
}

// NewSampler creates a sampler for the running process.
func NewSampler(c *Collector, interval time.Duration, logger *slog.Logger) (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Sampler{collector: c, proc: proc, interval: interval, logger: logger}, nil
}

// Sample reads CPU and RSS once and publishes them.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	cpu, err := s.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("cpu percent: %w", err)
	}
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("memory info: %w", err)
	}
	sample := Sample{CPUPercent: cpu, RSSBytes: mem.RSS}
	s.collector.SetSystem(sample.CPUPercent, sample.RSSBytes)
	return sample, nil
}

// Run samples every interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		sample, err := s.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("performance_sample_failed", "error", err)
		} else {
			s.logger.Info("performance_metrics",
				"cpu_percent", sample.CPUPercent,
				"memory_mb", float64(sample.RSSBytes)/1024/1024,
				"features_processed", s.collector.Processed(),
				"features_failed", s.collector.Failed(),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Values of the operation label of db_operations_total
const (
	OpInsert           = "insert"
	OpUpdate           = "update"
	OpCommit           = "commit"
	OpRollback         = "rollback"
	OpReplace          = "replace"
	OpDownloadFailed   = "download_failed"
	OpJSONDecodeFailed = "json_decode_failed"
)

var (
	featureBuckets = []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0}
	chunkBuckets   = []float64{1.0, 5.0, 10.0, 30.0, 60.0}
)

// Collector groups the counters, gauges and histograms of one pipeline.
type Collector struct {
	registry *prometheus.Registry

	processed       prometheus.Counter
	failed          prometheus.Counter
	dbOperations    *prometheus.CounterVec
	downloadedBytes prometheus.Counter

	activeWorkers   prometheus.Gauge
	cpuUsage        prometheus.Gauge
	memoryUsage     prometheus.Gauge
	downloadSpeed   prometheus.Gauge
	processingSpeed prometheus.Gauge

	featureSeconds prometheus.Histogram
	chunkSeconds   prometheus.Histogram

	processedCount atomic.Int64
	failedCount    atomic.Int64
}

// New creates a Collector with all instruments registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "processed_features_total",
			Help: "Total number of features processed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "failed_features_total",
			Help: "Total number of features that failed processing",
		}),
		dbOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "db_operations_total",
			Help: "Total number of database operations",
		}, []string{"operation"}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downloaded_bytes_total",
			Help: "Total bytes downloaded from sources",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Number of active feature workers",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "Current process CPU usage",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Current process resident memory",
		}),
		downloadSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "download_speed_bytes",
			Help: "Current download speed in bytes per second",
		}),
		processingSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "processing_speed_features",
			Help: "Features processed per second",
		}),
		featureSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_processing_seconds",
			Help:    "Time spent processing features",
			Buckets: featureBuckets,
		}),
		chunkSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chunk_processing_seconds",
			Help:    "Time spent processing chunks",
			Buckets: chunkBuckets,
		}),
	}

	c.registry.MustRegister(
		c.processed,
		c.failed,
		c.dbOperations,
		c.downloadedBytes,
		c.activeWorkers,
		c.cpuUsage,
		c.memoryUsage,
		c.downloadSpeed,
		c.processingSpeed,
		c.featureSeconds,
		c.chunkSeconds,
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// TrackFeature records one feature attempt and its latency.
func (c *Collector) TrackFeature(success bool, elapsed time.Duration) {
	if success {
		c.processed.Inc()
		c.processedCount.Add(1)
	} else {
		c.failed.Inc()
		c.failedCount.Add(1)
	}
	c.featureSeconds.Observe(elapsed.Seconds())
}

// TrackDBOperation increments db_operations_total for op.
func (c *Collector) TrackDBOperation(op string) {
	c.dbOperations.WithLabelValues(op).Inc()
}

// ObserveChunk records the wall time of one chunk.
func (c *Collector) ObserveChunk(elapsed time.Duration) {
	c.chunkSeconds.Observe(elapsed.Seconds())
}

// WorkerStarted and WorkerDone bracket one busy feature worker.
func (c *Collector) WorkerStarted() { c.activeWorkers.Inc() }

// WorkerDone decrements the active worker gauge.
func (c *Collector) WorkerDone() { c.activeWorkers.Dec() }

// AddDownloaded adds n bytes to the download counter.
func (c *Collector) AddDownloaded(n int) {
	if n > 0 {
		c.downloadedBytes.Add(float64(n))
	}
}

// UpdateDownloadSpeed sets the download speed from a byte count and duration.
func (c *Collector) UpdateDownloadSpeed(bytes int64, elapsed time.Duration) {
	if elapsed > 0 {
		c.downloadSpeed.Set(float64(bytes) / elapsed.Seconds())
	}
}

// UpdateProcessingSpeed sets features per second since start.
func (c *Collector) UpdateProcessingSpeed(succeeded int, since time.Time) {
	elapsed := time.Since(since).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	c.processingSpeed.Set(float64(succeeded) / elapsed)
}

// SetSystem publishes a CPU/RSS sample.
func (c *Collector) SetSystem(cpuPercent float64, rssBytes uint64) {
	c.cpuUsage.Set(cpuPercent)
	c.memoryUsage.Set(float64(rssBytes))
}

// Processed returns the number of successful feature observations.
func (c *Collector) Processed() int64 { return c.processedCount.Load() }

// Failed returns the number of failed feature observations.
func (c *Collector) Failed() int64 { return c.failedCount.Load() }

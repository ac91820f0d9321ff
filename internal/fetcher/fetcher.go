package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/pkg/types"
)

const (
	// DefaultTimeout bounds one download attempt
	DefaultTimeout = 60 * time.Second

	backupPrefix    = "geojson_backup_"
	backupTimestamp = "20060102_150405"
)

// Fetcher downloads source documents into a backup directory
type Fetcher struct {
	client    *http.Client
	backupDir string
	metrics   *metrics.Collector
	retry     RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default client (60s timeout)
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRetryPolicy sets the policy used by FetchWithRetry
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) { f.retry = p }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithClock sets the time source used for backup names
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a Fetcher writing backups to backupDir. A nil collector gets a
// private one.
func New(backupDir string, m *metrics.Collector, opts ...Option) *Fetcher {
	if m == nil {
		m = metrics.New()
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		backupDir: backupDir,
		metrics:   m,
		retry:     DefaultRetryPolicy(),
		logger:    logging.L(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchWithRetry calls Fetch, retrying network failures per the retry policy
func (f *Fetcher) FetchWithRetry(ctx context.Context, url string) (*types.SourceDocument, error) {
	return retryWithBackoff(ctx, f.retry, isRetryable, func(attempt int) (*types.SourceDocument, error) {
		doc, err := f.Fetch(ctx, url)
		if err != nil {
			f.logger.Warn("fetch_attempt_failed",
				"url", url,
				"attempt", attempt,
				"max_attempts", f.retry.MaxAttempts,
				"error", err,
			)
		}
		return doc, err
	})
}

func isRetryable(err error) bool {
	return errors.Is(err, types.ErrNetwork)
}

// Fetch downloads url once, backs it up and parses it
func (f *Fetcher) Fetch(ctx context.Context, url string) (*types.SourceDocument, error) {
	start := time.Now()

	path, hash, n, err := f.download(ctx, url)
	if err != nil {
		if errors.Is(err, types.ErrNetwork) {
			f.metrics.TrackDBOperation(metrics.OpDownloadFailed)
		}
		return nil, err
	}
	f.metrics.UpdateDownloadSpeed(n, time.Since(start))
	f.logger.Info("backup_created", "path", path, "bytes", n, "sha256", hash)

	features, err := parseFile(path)
	if err != nil {
		f.metrics.TrackDBOperation(metrics.OpJSONDecodeFailed)
		f.logger.Error("payload_invalid", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidPayload, path, err)
	}

	return &types.SourceDocument{
		URL:        url,
		Features:   features,
		Hash:       hash,
		Bytes:      n,
		BackupPath: path,
		FetchedAt:  start.UTC(),
	}, nil
}

// download streams the body to a backup file and returns its path, digest and
// size.
func (f *Fetcher) download(ctx context.Context, url string) (string, string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: build request: %v", types.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", 0, fmt.Errorf("%w: unexpected status %s", types.ErrNetwork, resp.Status)
	}

	if err := os.MkdirAll(f.backupDir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.backupDir, ".download-*.tmp")
	if err != nil {
		return "", "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	h := newDigest()
	counter := &progressWriter{metrics: f.metrics, start: time.Now()}
	if _, err := io.Copy(io.MultiWriter(tmp, h, counter), resp.Body); err != nil {
		cleanup()
		return "", "", 0, fmt.Errorf("%w: read body: %v", types.ErrNetwork, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", "", 0, fmt.Errorf("close temp file: %w", err)
	}

	path := f.backupPath()
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", "", 0, fmt.Errorf("move backup: %w", err)
	}
	return path, h.Hex(), counter.total, nil
}

// backupPath picks an unused timestamped name in the backup directory.
func (f *Fetcher) backupPath() string {
	stamp := f.now().UTC().Format(backupTimestamp)
	path := filepath.Join(f.backupDir, backupPrefix+stamp+".json")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(f.backupDir, fmt.Sprintf("%s%s_%d.json", backupPrefix, stamp, i))
	}
}

func parseFile(path string) ([]types.Feature, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseFeatureCollection(file)
}

// progressWriter counts bytes and publishes download metrics as they arrive
type progressWriter struct {
	metrics *metrics.Collector
	start   time.Time
	total   int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.total += int64(len(p))
	w.metrics.AddDownloaded(len(p))
	w.metrics.UpdateDownloadSpeed(w.total, time.Since(w.start))
	return len(p), nil
}

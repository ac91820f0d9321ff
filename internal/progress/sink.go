package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink persists RunState snapshots.
type Sink interface {
	Save(ctx context.Context, state RunState) error
}

// FileSink writes the snapshot as indented JSON, replacing the file atomically.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path. Parent directories are created on
// first save.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the status file location.
func (s *FileSink) Path() string { return s.path }

// Save implements Sink.
func (s *FileSink) Save(_ context.Context, state RunState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("create temp status: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close status: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}

// ReadStatus loads the snapshot written by a FileSink. A missing file yields
// the No Run state.
func ReadStatus(path string) (RunState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NoRun(), nil
	}
	if err != nil {
		return RunState{}, fmt.Errorf("read status: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return RunState{}, fmt.Errorf("decode status: %w", err)
	}
	return state, nil
}

// RedisSink mirrors the snapshot under a single key.
type RedisSink struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisSink creates a sink writing to key. A zero ttl keeps the key forever.
func NewRedisSink(client redis.Cmdable, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, key: key, ttl: ttl}
}

// Save implements Sink.
func (s *RedisSink) Save(ctx context.Context, state RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Load reads the mirrored snapshot. A missing key yields the No Run state.
func (s *RedisSink) Load(ctx context.Context) (RunState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return NoRun(), nil
	}
	if err != nil {
		return RunState{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return RunState{}, fmt.Errorf("decode status: %w", err)
	}
	return state, nil
}

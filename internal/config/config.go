package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Store backends
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// DefaultSourceURL is the district boundary collection ingested when no source
// is configured.
const DefaultSourceURL = "https://raw.githubusercontent.com/datameet/maps/master/Districts/Karnataka.geojson"

// DefaultRedisStatusKey is the key mirrored by the Redis status sink.
const DefaultRedisStatusKey = "geosync:status"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every runtime setting.
type Config struct {
	SourceURL string

	Store          string
	SQLitePath     string
	PostgresDSN    string
	PGMaxOpenConns int
	PGMaxIdleConns int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisStatusKey string

	ChunkSize      int
	FeatureWorkers int
	ChunkWorkers   int
	CacheSize      int

	FetchAttempts  int
	FetchTimeout   time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	BackupDir  string
	StatusFile string

	MetricsAddr    string
	SampleInterval time.Duration
	Interval       time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultWorkers returns max(1, NumCPU-1).
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		SourceURL:      DefaultSourceURL,
		Store:          StoreSQLite,
		SQLitePath:     "geosync.db",
		PGMaxOpenConns: 50,
		PGMaxIdleConns: 25,
		RedisStatusKey: DefaultRedisStatusKey,
		ChunkSize:      100,
		FeatureWorkers: DefaultWorkers(),
		ChunkWorkers:   DefaultWorkers(),
		CacheSize:      4096,
		FetchAttempts:  3,
		FetchTimeout:   60 * time.Second,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
		BackupDir:      "data_backups",
		StatusFile:     "status/current_status.json",
		MetricsAddr:    ":8000",
		SampleInterval: time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads the given env files (default ".env"; missing files are ignored)
// and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function layered over Default.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("GEOJSON_URL", &cfg.SourceURL)
	str("GEOSYNC_SOURCE_URL", &cfg.SourceURL)
	str("GEOSYNC_STORE", &cfg.Store)
	cfg.Store = strings.ToLower(cfg.Store)
	str("GEOSYNC_DB_PATH", &cfg.SQLitePath)
	num("GEOSYNC_CHUNK_SIZE", &cfg.ChunkSize)
	num("GEOSYNC_FEATURE_WORKERS", &cfg.FeatureWorkers)
	num("GEOSYNC_CHUNK_WORKERS", &cfg.ChunkWorkers)
	num("GEOSYNC_CACHE_SIZE", &cfg.CacheSize)
	num("GEOSYNC_FETCH_ATTEMPTS", &cfg.FetchAttempts)
	dur("GEOSYNC_FETCH_TIMEOUT", &cfg.FetchTimeout)
	str("GEOSYNC_BACKUP_DIR", &cfg.BackupDir)
	str("GEOSYNC_STATUS_FILE", &cfg.StatusFile)
	str("GEOSYNC_METRICS_ADDR", &cfg.MetricsAddr)
	dur("GEOSYNC_SAMPLE_INTERVAL", &cfg.SampleInterval)
	dur("GEOSYNC_INTERVAL", &cfg.Interval)

	cfg.PostgresDSN = BuildPostgresDSN(getenv)
	num("PG_MAX_OPEN_CONNS", &cfg.PGMaxOpenConns)
	num("PG_MAX_IDLE_CONNS", &cfg.PGMaxIdleConns)

	if host := strings.TrimSpace(getenv("REDIS_HOST")); host != "" {
		port := strings.TrimSpace(getenv("REDIS_PORT"))
		if port == "" {
			port = "6379"
		}
		cfg.RedisAddr = host + ":" + port
	}
	cfg.RedisPassword = getenv("REDIS_PASS")
	// REDIS_DB parse errors fall back to 0
	if n, err := strconv.Atoi(strings.TrimSpace(getenv("REDIS_DB"))); err == nil && n >= 0 {
		cfg.RedisDB = n
	}
	str("REDIS_STATUS_KEY", &cfg.RedisStatusKey)

	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// BuildPostgresDSN assembles a postgres:// URL from PG_* variables.
func BuildPostgresDSN(getenv func(string) string) string {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	user := get("PG_USER", "postgres")
	dsn := "postgres://" + user
	if pass := getenv("PG_PASSWORD"); pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + get("PG_HOST", "localhost") + ":" + get("PG_PORT", "5432") +
		"/" + get("PG_DB", "geosync") + "?sslmode=" + get("PG_SSLMODE", "disable")
	return dsn
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// RedisOptions returns client options for the configured Redis, or nil.
func (c *Config) RedisOptions() *redis.Options {
	if !c.RedisEnabled() {
		return nil
	}
	return &redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Validate checks the settings used by the pipeline.
func (c *Config) Validate() error {
	switch {
	case c.SourceURL == "":
		return fmt.Errorf("%w: source url is required", ErrInvalidConfig)
	case c.Store != StoreSQLite && c.Store != StorePostgres:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.ChunkSize < 1:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	case c.FeatureWorkers < 1 || c.ChunkWorkers < 1:
		return fmt.Errorf("%w: worker counts must be positive", ErrInvalidConfig)
	case c.FetchAttempts < 1:
		return fmt.Errorf("%w: fetch attempts must be positive", ErrInvalidConfig)
	case c.Interval < 0:
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Options selects the handler built by Setup.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// ParseLevel maps a level name to a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger without installing it as the default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	return slog.New(h)
}

// Setup installs the logger as both the package default and slog's default,
// and returns it.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// SetupFromEnv is Setup driven by LOG_LEVEL and LOG_FORMAT.
func SetupFromEnv() *slog.Logger {
	return Setup(Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
}

// L returns the default logger, initializing it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	return SetupFromEnv()
}

// Discard returns a logger that drops every record. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or the default logger when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return L()
	}
	return l
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/metrics"
	"github.com/dshills/geosync/internal/progress"
)

const shutdownTimeout = 10 * time.Second

// StatusSource reports the current run state
type StatusSource interface {
	CurrentStatus() progress.RunState
}

// HealthCheck returns nil when the service can reach its dependencies
type HealthCheck func(ctx context.Context) error

// Routes builds the handler for /monitor/status, /metrics and /healthz.
func Routes(status StatusSource, m *metrics.Collector, health HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /monitor/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status.CurrentStatus())
	})

	mux.Handle("GET /metrics", m.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the monitoring HTTP server
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// New creates a server on addr with access logging around handler.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	logger = logging.OrDefault(logger)
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           logging.AccessMiddleware(logger)(handler),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Serve listens on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("http_server_stopped")
		return nil
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

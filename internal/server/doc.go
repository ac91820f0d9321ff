// Package server exposes run status, Prometheus metrics and a health check
// over HTTP.
//
// Routes:
//
//	GET /monitor/status  current RunState as JSON
//	GET /metrics         Prometheus exposition of the Collector's registry
//	GET /healthz         200 when the HealthCheck passes, 503 otherwise
//
// Every request goes through logging.AccessMiddleware. Serve shuts the listener
// down gracefully when its context is cancelled.
package server

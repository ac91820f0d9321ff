// Package metrics exposes the pipeline's Prometheus instruments.
//
// Every Collector owns a private registry, so tests and embedded uses never
// touch the global default registry. All methods are safe for concurrent use.
package metrics

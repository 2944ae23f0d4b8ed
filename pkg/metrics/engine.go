package metrics

import (
	"github.com/marmos91/eradb/pkg/engine"
)

// NewEngineMetrics creates a Prometheus-backed engine.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or no
// implementation has been linked in. Pass the result to engine.WithMetrics;
// nil disables collection.
//
// Example usage:
//
//	metrics.InitRegistry()
//	db, err := engine.Open(ctx, dir, opts, engine.WithMetrics(metrics.NewEngineMetrics()))
func NewEngineMetrics() engine.Metrics {
	if !IsEnabled() || newPrometheusEngineMetrics == nil {
		return nil
	}
	return newPrometheusEngineMetrics()
}

// newPrometheusEngineMetrics is implemented in pkg/metrics/prometheus/engine.go.
// The indirection keeps this package free of the implementation import.
var newPrometheusEngineMetrics func() engine.Metrics

// RegisterEngineMetricsConstructor registers the Prometheus engine metrics
// constructor. Called by pkg/metrics/prometheus during package initialization.
func RegisterEngineMetricsConstructor(constructor func() engine.Metrics) {
	newPrometheusEngineMetrics = constructor
}

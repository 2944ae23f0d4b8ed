// Package metrics exposes engine metrics through a Prometheus registry.
//
// Metrics are off until InitRegistry is called. While off, the New*
// constructors return nil, which the engine treats as "no metrics" at zero
// cost.
package metrics

import (
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics with a fresh registry carrying the Go runtime
// and process collectors. Calling it again replaces the registry.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mu.Lock()
	registry = reg
	mu.Unlock()
	return reg
}

// SetRegistry enables metrics on an existing registry. A nil registry
// disables metrics.
func SetRegistry(reg *prometheus.Registry) {
	mu.Lock()
	registry = reg
	mu.Unlock()
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the active registry, or nil when metrics are off.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// WriteText gathers the active registry and writes it in the Prometheus text
// exposition format.
func WriteText(w io.Writer) error {
	reg := GetRegistry()
	if reg == nil {
		return fmt.Errorf("metrics are not enabled")
	}

	mfs, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

package telemetry

import (
	"fmt"
	"maps"
	"runtime"
	"slices"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig holds Pyroscope continuous profiling configuration.
type ProfilingConfig struct {
	Enabled bool

	// ServiceName is the application name shown in Pyroscope.
	ServiceName string

	ServiceVersion string

	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string

	// ProfileTypes lists the profiles to push, see ProfileTypeNames.
	ProfileTypes []string
}

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// ProfileTypeNames returns the accepted profile type names in sorted order.
func ProfileTypeNames() []string {
	return slices.Sorted(maps.Keys(profileTypes))
}

func parseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	out := make([]pyroscope.ProfileType, 0, len(names))
	for _, name := range names {
		pt, ok := profileTypes[name]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		out = append(out, pt)
	}
	return out, nil
}

// StartProfiling starts pushing profiles to Pyroscope. The returned function
// uploads what was collected and stops the profiler; it is a no-op when
// profiling is disabled.
func StartProfiling(cfg ProfilingConfig) (func() error, error) {
	if !cfg.Enabled {
		return func() error { return nil }, nil
	}

	types, err := parseProfileTypes(cfg.ProfileTypes)
	if err != nil {
		return nil, err
	}

	// the runtime only samples these when asked to
	for _, pt := range types {
		switch pt {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(5)
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(5)
		}
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            map[string]string{"version": cfg.ServiceVersion},
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	return p.Stop, nil
}

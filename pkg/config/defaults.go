package config

import (
	"strings"

	"github.com/marmos91/eradb/internal/bytesize"
	"github.com/marmos91/eradb/pkg/engine"
	"github.com/marmos91/eradb/pkg/flusher"
)

// DefaultDatabasePath is used when no database path is configured.
const DefaultDatabasePath = "./eradb-data"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Booleans that default to true are set by Load and GetDefaultConfig.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyDatabaseDefaults(&cfg.Database)
	applyFlusherDefaults(&cfg.Flusher)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// standard OTLP gRPC port
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// standard Pyroscope port
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	// flushes are CPU and allocation bound; writers contend on the write lock
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines", "mutex_duration"}
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	def := engine.DefaultOptions()

	if cfg.Path == "" {
		cfg.Path = DefaultDatabasePath
	}
	if cfg.MaxJournalEras == 0 {
		cfg.MaxJournalEras = def.MaxJournalEras
	}
	if cfg.PreallocatedSize == 0 {
		cfg.PreallocatedSize = bytesize.ByteSize(def.PreallocatedBytes)
	}
	if cfg.ExtendThresholdPct == 0 {
		cfg.ExtendThresholdPct = def.ExtendThresholdPct
	}
	if cfg.EraLimitPolicy == "" {
		cfg.EraLimitPolicy = string(def.EraLimitPolicy)
	}
	cfg.EraLimitPolicy = strings.ToLower(cfg.EraLimitPolicy)
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 64 * bytesize.MiB
	}
}

func applyFlusherDefaults(cfg *flusher.Config) {
	def := flusher.DefaultConfig()
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}
	if cfg.HighWater == 0 {
		cfg.HighWater = def.HighWater
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = def.CheckInterval
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
		Database: DatabaseConfig{
			Cache: CacheConfig{Enabled: true},
		},
		Flusher: flusher.Config{
			FlushOnStop: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

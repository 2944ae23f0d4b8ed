package config

import (
	"github.com/marmos91/eradb/internal/bytesize"
	"github.com/marmos91/eradb/pkg/cache"
	"github.com/marmos91/eradb/pkg/engine"
)

// DatabaseConfig holds the options the database is opened with. They are
// fixed for the lifetime of an open database.
type DatabaseConfig struct {
	// Path is the database directory
	// Default: "./eradb-data"
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// MaxJournalEras bounds the number of committed but unflushed eras
	// Default: 5
	MaxJournalEras int `mapstructure:"max_journal_eras" validate:"gte=1" yaml:"max_journal_eras"`

	// PreallocatedSize is the initial record region of a new store
	// Supports human-readable formats: "64Mi", "1GB"
	// Default: 64Mi
	PreallocatedSize bytesize.ByteSize `mapstructure:"preallocated_size" validate:"gt=0" yaml:"preallocated_size" jsonschema:"oneof_type=string;integer"`

	// ExtendThresholdPct is the used percentage of the record region that
	// triggers growth
	// Default: 80
	ExtendThresholdPct uint8 `mapstructure:"extend_threshold_pct" validate:"gte=1,lte=100" yaml:"extend_threshold_pct"`

	// EraLimitPolicy decides what a commit does when the journal is full
	// Valid values: flush, reject
	// Default: flush
	EraLimitPolicy string `mapstructure:"era_limit_policy" validate:"oneof=flush reject" yaml:"era_limit_policy"`

	// Cache sizes the read cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig sizes the read cache.
type CacheConfig struct {
	// Enabled turns the read cache on
	// Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Size is the cache budget in bytes of keys and values
	// Default: 64Mi
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size" jsonschema:"oneof_type=string;integer"`
}

// EngineOptions converts the configuration into engine options.
func (c DatabaseConfig) EngineOptions() engine.Options {
	return engine.Options{
		MaxJournalEras:     c.MaxJournalEras,
		PreallocatedBytes:  c.PreallocatedSize.Uint64(),
		ExtendThresholdPct: c.ExtendThresholdPct,
		EraLimitPolicy:     engine.EraLimitPolicy(c.EraLimitPolicy),
	}
}

// NewCache builds the configured read cache. A disabled cache is a
// cache.Null.
func (c CacheConfig) NewCache() (cache.Cache, error) {
	if !c.Enabled {
		return cache.Null{}, nil
	}
	cfg := cache.DefaultConfig()
	if c.Size > 0 {
		cfg.MaxCost = int64(c.Size)
	}
	return cache.NewRistretto(cfg)
}

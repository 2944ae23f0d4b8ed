package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/eradb/pkg/cache"
)

// EraLimitPolicy decides what Commit does when the journal is full.
type EraLimitPolicy string

const (
	// PolicyFlush flushes the journal before pushing the new era.
	PolicyFlush EraLimitPolicy = "flush"

	// PolicyReject fails the commit with ErrEraLimitExceeded.
	PolicyReject EraLimitPolicy = "reject"
)

// Options are fixed when the database is opened.
type Options struct {
	// MaxJournalEras bounds the number of pending eras.
	MaxJournalEras int `validate:"gte=1"`

	// PreallocatedBytes is the initial record region size of a new store.
	PreallocatedBytes uint64 `validate:"gt=0"`

	// ExtendThresholdPct is the used ratio that triggers store growth.
	ExtendThresholdPct uint8 `validate:"gte=1,lte=100"`

	EraLimitPolicy EraLimitPolicy `validate:"oneof=flush reject"`
}

// DefaultOptions returns 5 eras, a 64 MiB store, growth at 80% and
// implicit flushing when the journal is full.
func DefaultOptions() Options {
	return Options{
		MaxJournalEras:     5,
		PreallocatedBytes:  64 << 20,
		ExtendThresholdPct: 80,
		EraLimitPolicy:     PolicyFlush,
	}
}

var validate = validator.New()

// Validate checks the options. Nothing is defaulted.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// Option injects a collaborator at Open.
type Option func(*Engine)

// WithCache replaces the default read cache. The caller keeps ownership:
// Close does not close an injected cache.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) {
		if c == nil {
			c = cache.Null{}
		}
		e.cache = c
		e.ownsCache = false
	}
}

// WithMetrics sets the metrics sink. A nil Metrics disables metrics.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

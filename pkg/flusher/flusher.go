// Package flusher implements background flushing of an engine's journal.
//
// The flusher merges pending eras on a fixed interval and as soon as their
// number reaches a high-water mark, so that commits rarely pay for an
// implicit flush. A flush already running is never waited for: the attempt
// is counted as skipped and retried at the next trigger.
package flusher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/pkg/engine"
)

// Target is the database a Flusher flushes.
type Target interface {
	TryFlush(ctx context.Context) error
	Properties() engine.Properties
}

// Config holds configuration for the background flusher.
type Config struct {
	// Interval between unconditional flush attempts. Zero disables
	// interval flushing.
	// Default: 30s
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`

	// HighWater is the number of pending eras that triggers a flush. Zero
	// disables high-water flushing.
	// Default: 3
	HighWater int `mapstructure:"high_water" yaml:"high_water" validate:"gte=0"`

	// CheckInterval is how often the pending era count is polled.
	// Default: 250ms
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval" validate:"gte=0"`

	// FlushOnStop runs a final flush when Stop is called.
	FlushOnStop bool `mapstructure:"flush_on_stop" yaml:"flush_on_stop"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		HighWater:     3,
		CheckInterval: 250 * time.Millisecond,
		FlushOnStop:   true,
	}
}

// Stats are the flusher's counters.
type Stats struct {
	Flushes     int
	Skipped     int
	Failed      int
	LastFlushAt time.Time
	LastError   error
	LastErrorAt time.Time
}

// Flusher flushes a Target in the background.
type Flusher struct {
	target Target
	cfg    Config

	notifyCh  chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	stats   Stats
}

// New creates a flusher. It does nothing until Start is called.
func New(target Target, cfg Config) *Flusher {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Flusher{
		target:    target,
		cfg:       cfg,
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately; the loop runs until
// Stop is called or ctx is done.
func (f *Flusher) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	logger.Info("Starting background flusher",
		"interval", f.cfg.Interval,
		"high_water", f.cfg.HighWater)

	go f.run(ctx)
}

// Notify asks for a high-water check without waiting for the next poll.
// It never blocks.
func (f *Flusher) Notify() {
	select {
	case f.notifyCh <- struct{}{}:
	default:
	}
}

// Stop shuts the loop down, waiting up to timeout for a running flush and
// the final flush if FlushOnStop is set.
func (f *Flusher) Stop(timeout time.Duration) {
	f.mu.Lock()
	if !f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()

	close(f.stopCh)

	select {
	case <-f.stoppedCh:
		logger.Info("Background flusher stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Background flusher stop timed out", logger.KeyEras, f.target.Properties().PendingEras)
	}
}

// Stats returns a copy of the counters.
func (f *Flusher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.stoppedCh)

	check := time.NewTicker(f.cfg.CheckInterval)
	defer check.Stop()

	var interval <-chan time.Time
	if f.cfg.Interval > 0 {
		t := time.NewTicker(f.cfg.Interval)
		defer t.Stop()
		interval = t.C
	}

	for {
		select {
		case <-f.stopCh:
			if f.cfg.FlushOnStop {
				f.flushIfPending(ctx, "stop")
			}
			return

		case <-ctx.Done():
			return

		case <-interval:
			f.flushIfPending(ctx, "interval")

		case <-check.C:
			f.checkHighWater(ctx)

		case <-f.notifyCh:
			f.checkHighWater(ctx)
		}
	}
}

func (f *Flusher) checkHighWater(ctx context.Context) {
	if f.cfg.HighWater <= 0 {
		return
	}
	if f.target.Properties().PendingEras >= f.cfg.HighWater {
		f.flushIfPending(ctx, "high_water")
	}
}

func (f *Flusher) flushIfPending(ctx context.Context, trigger string) {
	pending := f.target.Properties().PendingEras
	if pending == 0 {
		return
	}

	start := time.Now()
	err := f.target.TryFlush(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case errors.Is(err, engine.ErrFlushInProgress):
		f.stats.Skipped++
		logger.Debug("Background flush skipped, flush in progress", "trigger", trigger)
	case err != nil:
		f.stats.Failed++
		f.stats.LastError = fmt.Errorf("%s flush: %w", trigger, err)
		f.stats.LastErrorAt = time.Now()
		logger.Error("Background flush failed", "trigger", trigger, logger.KeyError, err)
	default:
		f.stats.Flushes++
		f.stats.LastFlushAt = time.Now()
		logger.Debug("Background flush completed",
			"trigger", trigger,
			logger.KeyEras, pending,
			logger.KeyDuration, logger.Duration(start))
	}
}

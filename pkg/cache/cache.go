// Package cache defines the read cache consulted by the engine before the
// journal and the mapped store, with a ristretto-backed implementation and
// a no-op one.
//
// The cache holds resolved values only: a key that resolves to "not found"
// is never cached. Coherence with writes is the engine's job; a Cache only
// has to make a Del issued after a Set win over it.
package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a bounded key/value cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the cached value for key. The returned slice must not be
	// modified.
	Get(key []byte) ([]byte, bool)

	// Set caches value for key. The cache may drop the entry.
	Set(key, value []byte)

	// Del removes key.
	Del(key []byte)

	// Clear removes every entry.
	Clear()

	// Wait blocks until earlier Set and Del calls have taken effect.
	Wait()

	// Close releases the cache's resources.
	Close()
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Keys   uint64
	Cost   uint64
}

// StatsProvider is implemented by caches that track Stats.
type StatsProvider interface {
	Stats() Stats
}

// Config sizes a Ristretto cache.
type Config struct {
	// MaxCost is the budget in bytes; an entry costs len(key)+len(value).
	MaxCost int64

	// NumCounters is the number of admission counters, ideally ten times
	// the expected number of cached entries.
	NumCounters int64
}

// DefaultConfig returns a 64 MiB cache.
func DefaultConfig() Config {
	return Config{
		MaxCost:     64 << 20,
		NumCounters: 1 << 20,
	}
}

// Ristretto is a Cache backed by dgraph-io/ristretto.
type Ristretto struct {
	c *ristretto.Cache[string, []byte]
}

var _ Cache = (*Ristretto)(nil)
var _ StatsProvider = (*Ristretto)(nil)

// NewRistretto creates a ristretto-backed cache.
func NewRistretto(cfg Config) (*Ristretto, error) {
	if cfg.MaxCost <= 0 {
		return nil, fmt.Errorf("cache: max cost must be > 0, got %d", cfg.MaxCost)
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = DefaultConfig().NumCounters
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create ristretto: %w", err)
	}
	return &Ristretto{c: c}, nil
}

func (r *Ristretto) Get(key []byte) ([]byte, bool) {
	return r.c.Get(string(key))
}

func (r *Ristretto) Set(key, value []byte) {
	r.c.Set(string(key), value, int64(len(key)+len(value)))
}

func (r *Ristretto) Del(key []byte) {
	r.c.Del(string(key))
}

func (r *Ristretto) Clear() {
	r.c.Clear()
}

func (r *Ristretto) Close() {
	r.c.Close()
}

func (r *Ristretto) Wait() {
	r.c.Wait()
}

// Stats implements StatsProvider.
func (r *Ristretto) Stats() Stats {
	m := r.c.Metrics
	if m == nil {
		return Stats{}
	}
	return Stats{
		Hits:   m.Hits(),
		Misses: m.Misses(),
		Keys:   m.KeysAdded() - m.KeysEvicted(),
		Cost:   m.CostAdded() - m.CostEvicted(),
	}
}

// Null is a Cache that stores nothing.
type Null struct{}

var _ Cache = Null{}

func (Null) Get([]byte) ([]byte, bool) { return nil, false }
func (Null) Set([]byte, []byte)        {}
func (Null) Del([]byte)                {}
func (Null) Clear()                    {}
func (Null) Wait()                     {}
func (Null) Close()                    {}

// Package bufpool provides pooled scratch buffers for encoding journal eras
// and virtual commit payloads.
//
// Buffers come in three size classes. Requests above the largest class are
// allocated directly and never pooled, so a single huge batch does not pin
// memory after it has been written.
//
//	buf := bufpool.Get(n)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

const (
	// SmallSize covers single-key commits.
	SmallSize = 4 << 10

	// MediumSize covers typical multi-key batches.
	MediumSize = 256 << 10

	// LargeSize covers large batches and merged flush payloads.
	LargeSize = 4 << 20
)

// Pool hands out byte slices grouped by capacity class.
type Pool struct {
	classes [3]sizeClass
}

type sizeClass struct {
	size int
	pool sync.Pool
}

// NewPool creates a pool with the given class sizes. Zero sizes fall back to
// the package defaults.
func NewPool(small, medium, large int) *Pool {
	if small <= 0 {
		small = SmallSize
	}
	if medium <= 0 {
		medium = MediumSize
	}
	if large <= 0 {
		large = LargeSize
	}

	p := &Pool{}
	for i, size := range []int{small, medium, large} {
		c := &p.classes[i]
		c.size = size
		c.pool.New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a slice of length size. The caller must return it with Put.
func (p *Pool) Get(size int) []byte {
	for i := range p.classes {
		c := &p.classes[i]
		if size <= c.size {
			buf := *(c.pool.Get().(*[]byte))
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its size class. Slices that did not come from the pool
// are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i := range p.classes {
		c := &p.classes[i]
		if cap(buf) == c.size {
			full := buf[:c.size]
			c.pool.Put(&full)
			return
		}
	}
}

var defaultPool = NewPool(0, 0, 0)

// Get returns a buffer of length size from the default pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put returns buf to the default pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}

package store

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/marmos91/eradb/internal/logger"
)

// region is one mapping of the data file. The store holds one reference
// while the region is current; every reader holds one while it uses a
// snapshot. The mapping is released when the count drops to zero.
type region struct {
	data     []byte
	refs     atomic.Int64
	unmapped atomic.Bool
}

func mapRegion(f *os.File, size int) (*region, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	r := &region{data: data}
	r.refs.Store(1)
	return r, nil
}

// acquire takes a reference unless the region has already been retired.
func (r *region) acquire() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *region) release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	if err := unix.Munmap(r.data); err != nil {
		logger.Warn("Store: munmap failed", logger.KeyBytes, len(r.data), logger.KeyError, err)
	}
	r.unmapped.Store(true)
}

// sync flushes the byte range [from, to) of the mapping to disk.
func (r *region) sync(from, to int) error {
	page := os.Getpagesize()
	start := from - from%page
	if err := unix.Msync(r.data[start:to], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	return nil
}

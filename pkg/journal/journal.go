// Package journal keeps the ordered list of pending eras: batches that were
// committed durably but not yet merged into the mapped store.
//
// Each era lives in its own file under the journal directory. Files are
// created once, fsynced together with their directory, and never modified;
// they are only removed by Pop (rollback) or DropThrough (after a flush has
// durably staged them into a virtual commit).
package journal

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/marmos91/eradb/internal/fsutil"
	"github.com/marmos91/eradb/pkg/batch"
)

// CorruptEra describes an era file that failed validation at open.
type CorruptEra struct {
	Path     string
	Sequence uint64
	Err      error
}

// Journal is the ordered set of pending eras, oldest first.
//
// Thread safety: all methods are safe for concurrent use. Mutating methods
// are expected to be serialised by the caller's write lock; readers only take
// the journal's read lock.
type Journal struct {
	mu      sync.RWMutex
	dir     string
	maxEras int
	eras    []*Era
	lastSeq uint64
	corrupt []CorruptEra
}

// Open loads every era in dir, creating the directory if needed. Eras that
// fail validation are not loaded; they are reported by Corrupt and removed by
// RemoveCorrupt. The next sequence number continues after every sequence
// found on disk, valid or not.
func Open(dir string, maxEras int) (*Journal, error) {
	if maxEras < 1 {
		return nil, fmt.Errorf("journal: max eras must be >= 1, got %d", maxEras)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	j := &Journal{dir: dir, maxEras: maxEras}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seq, ok := parseEraFileName(entry.Name())
		if !ok {
			continue
		}
		j.lastSeq = max(j.lastSeq, seq)

		path := filepath.Join(dir, entry.Name())
		era, err := readEra(path, seq)
		if err != nil {
			if !errors.Is(err, ErrCorruptEra) {
				return nil, fmt.Errorf("read era %s: %w", entry.Name(), err)
			}
			j.corrupt = append(j.corrupt, CorruptEra{Path: path, Sequence: seq, Err: err})
			continue
		}
		j.eras = append(j.eras, era)
	}

	slices.SortFunc(j.eras, func(a, b *Era) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		}
		return 0
	})
	return j, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// MaxEras returns the configured era limit.
func (j *Journal) MaxEras() int {
	return j.maxEras
}

// Len returns the number of pending eras.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.eras)
}

// Full reports whether Push would fail with ErrEraLimitExceeded.
func (j *Journal) Full() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.eras) >= j.maxEras
}

// LastSequence returns the highest sequence number assigned so far.
func (j *Journal) LastSequence() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastSeq
}

// AdvanceSequence makes sure the next era is numbered after seq.
func (j *Journal) AdvanceSequence(seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastSeq = max(j.lastSeq, seq)
}

// Bytes returns the on-disk size of all pending eras.
func (j *Journal) Bytes() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var n int64
	for _, e := range j.eras {
		n += e.size
	}
	return n
}

// Push writes b as a new era numbered LastSequence()+1. The era is durable
// when Push returns.
func (j *Journal) Push(b *batch.Batch) (*Era, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.eras) >= j.maxEras {
		return nil, fmt.Errorf("%w: %d of %d eras pending", ErrEraLimitExceeded, len(j.eras), j.maxEras)
	}

	seq := j.lastSeq + 1
	era, err := writeEra(j.dir, seq, b)
	if err != nil {
		return nil, err
	}

	j.lastSeq = seq
	j.eras = append(j.eras, era)
	return era, nil
}

// Pop removes the newest era and deletes its file.
func (j *Journal) Pop() (*Era, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.eras) == 0 {
		return nil, ErrNothingToRollback
	}

	era := j.eras[len(j.eras)-1]
	if err := fsutil.Remove(j.path(era.Sequence)); err != nil {
		return nil, fmt.Errorf("remove era %d: %w", era.Sequence, err)
	}
	j.eras = j.eras[:len(j.eras)-1]
	return era, nil
}

// DropThrough removes every era with a sequence <= seq and returns how many
// were removed. Eras already removed from disk are dropped silently.
func (j *Journal) DropThrough(seq uint64) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	dropped := 0
	for _, era := range j.eras {
		if era.Sequence > seq {
			break
		}
		if err := os.Remove(j.path(era.Sequence)); err != nil && !os.IsNotExist(err) {
			j.eras = j.eras[dropped:]
			return dropped, fmt.Errorf("remove era %d: %w", era.Sequence, err)
		}
		dropped++
	}
	j.eras = j.eras[dropped:]

	if dropped > 0 {
		if err := fsutil.SyncDir(j.dir); err != nil {
			return dropped, err
		}
	}
	return dropped, nil
}

// Snapshot returns the pending eras, oldest first.
func (j *Journal) Snapshot() []*Era {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.eras)
}

// Eras yields the pending eras oldest first. The sequence is taken over a
// snapshot at the start of each iteration and can be ranged over repeatedly.
func (j *Journal) Eras() iter.Seq[*Era] {
	return func(yield func(*Era) bool) {
		for _, era := range j.Snapshot() {
			if !yield(era) {
				return
			}
		}
	}
}

// Newest yields the pending eras newest first.
func (j *Journal) Newest() iter.Seq[*Era] {
	return func(yield func(*Era) bool) {
		eras := j.Snapshot()
		for i := len(eras) - 1; i >= 0; i-- {
			if !yield(eras[i]) {
				return
			}
		}
	}
}

// Get resolves key against the pending eras, newest first. found is false
// when no era touches the key; otherwise op is the winning write, which may
// be a tombstone.
func (j *Journal) Get(key []byte) (op batch.Op, found bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := len(j.eras) - 1; i >= 0; i-- {
		if op, ok := j.eras[i].Lookup(key); ok {
			return op, true
		}
	}
	return batch.Op{}, false
}

// Corrupt returns the era files that failed validation at open and have not
// been removed yet.
func (j *Journal) Corrupt() []CorruptEra {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.corrupt)
}

// RemoveCorrupt deletes the corrupt era files found at open.
func (j *Journal) RemoveCorrupt() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	removed := 0
	for _, c := range j.corrupt {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			j.corrupt = j.corrupt[removed:]
			return removed, fmt.Errorf("remove corrupt era %d: %w", c.Sequence, err)
		}
		removed++
	}
	j.corrupt = nil

	if removed > 0 {
		if err := fsutil.SyncDir(j.dir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (j *Journal) path(seq uint64) string {
	return filepath.Join(j.dir, eraFileName(seq))
}

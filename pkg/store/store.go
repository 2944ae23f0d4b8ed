// Package store implements the mapped store: the memory-mapped file holding
// the last fully flushed state.
//
// File layout: a 4096 byte meta page (see meta.go) followed by the record
// region of Capacity bytes. Records are appended:
//
//	kind u8 | keylen u32 | vallen u32 | key | value
//
// Overwritten values and tombstones stay in the log until a compaction
// rewrites the live records into a fresh file (see compact.go).
//
// A B-tree index mapping key to value position is rebuilt from the record
// log on open. Readers work on immutable snapshots (region, index, meta)
// published through an atomic pointer, so a flush never exposes a partially
// applied state and growth never pulls a mapping out from under a reader.
package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/marmos91/eradb/internal/fsutil"
	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/pkg/batch"
)

const (
	// FileName is the name of the data file in the database dir.
	FileName = "data.db"

	recordHeaderSize = 1 + 4 + 4
	btreeDegree      = 32
)

// item is an index entry. off is the value position within the record
// region.
type item struct {
	key  string
	off  uint64
	vlen uint32
}

func itemLess(a, b item) bool {
	return a.key < b.key
}

type snapshot struct {
	region *region
	index  *btree.BTreeG[item]
	meta   Meta
}

// Store is the mapped store.
//
// Thread safety: Get, View and Meta are safe for concurrent use with each
// other and with Apply. Apply and Close are serialised internally.
type Store struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	threshold uint8

	// index is the writer's tree. Readers only ever see clones of it.
	index *btree.BTreeG[item]
	cur   atomic.Pointer[snapshot]
}

// ApplyResult describes what Apply did.
type ApplyResult struct {
	Applied      bool
	Grew         bool
	Compacted    bool
	Reclaimed    uint64
	OldCapacity  uint64
	NewCapacity  uint64
	BytesWritten uint64
	Meta         Meta
}

// Open maps the store at path, creating it with the given capacity if it
// does not exist. extendPct is the used ratio (1..100) above which Apply
// grows the region before writing.
func Open(path string, capacity uint64, extendPct uint8) (*Store, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("store: capacity must be > 0")
	}
	if extendPct == 0 || extendPct > 100 {
		return nil, fmt.Errorf("store: extend threshold must be in 1..100, got %d", extendPct)
	}

	// an interrupted compaction never replaced the data file
	if err := fsutil.Remove(path + compactSuffix); err != nil {
		return nil, fmt.Errorf("remove stale compaction file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	s := &Store{path: path, file: f, threshold: extendPct}
	if err := s.load(capacity); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(capacity uint64) error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}

	size := info.Size()
	if size == 0 {
		return s.initialize(capacity)
	}
	if size < metaPageSize {
		return fmt.Errorf("%w: file is %d bytes", ErrCorrupted, size)
	}

	r, err := mapRegion(s.file, int(size))
	if err != nil {
		return err
	}

	meta, err := pickMeta(r.data[:metaPageSize])
	if errors.Is(err, ErrCorrupted) && isZero(r.data[:metaPageSize]) {
		// creation never got as far as the first meta write
		r.release()
		return s.initialize(capacity)
	}
	if err != nil {
		r.release()
		return err
	}

	// a crash between ftruncate and the meta update leaves a larger file
	meta.Capacity = uint64(size) - metaPageSize
	if meta.Used > meta.Capacity {
		r.release()
		return fmt.Errorf("%w: used %d exceeds capacity %d", ErrCorrupted, meta.Used, meta.Capacity)
	}

	index, err := rebuildIndex(r.data[metaPageSize:metaPageSize+meta.Used])
	if err != nil {
		r.release()
		return err
	}

	s.index = index
	s.cur.Store(&snapshot{region: r, index: index.Clone(), meta: meta})
	logger.Debug("Store: opened", logger.KeyPath, s.path, "capacity", meta.Capacity, "used", meta.Used,
		logger.KeyVersion, meta.Version, logger.KeySeq, meta.LastSeq)
	return nil
}

func (s *Store) initialize(capacity uint64) error {
	if err := s.file.Truncate(int64(metaPageSize + capacity)); err != nil {
		return fmt.Errorf("allocate data file: %w", err)
	}

	r, err := mapRegion(s.file, int(metaPageSize+capacity))
	if err != nil {
		return err
	}

	meta := Meta{TxID: 0, Capacity: capacity}
	meta.encode(r.data[slotOffset(meta.TxID):])
	if err := r.sync(0, metaPageSize); err != nil {
		r.release()
		return err
	}
	if err := s.file.Sync(); err != nil {
		r.release()
		return fmt.Errorf("sync data file: %w", err)
	}
	if err := fsutil.SyncDir(filepath.Dir(s.path)); err != nil {
		r.release()
		return err
	}

	s.index = btree.NewG(btreeDegree, itemLess)
	s.cur.Store(&snapshot{region: r, index: s.index.Clone(), meta: meta})
	logger.Info("Store: created", logger.KeyPath, s.path, "capacity", capacity)
	return nil
}

func rebuildIndex(records []byte) (*btree.BTreeG[item], error) {
	index := btree.NewG(btreeDegree, itemLess)
	for off := uint64(0); off < uint64(len(records)); {
		if uint64(len(records))-off < recordHeaderSize {
			return nil, fmt.Errorf("%w: truncated record at %d", ErrCorrupted, off)
		}
		kind := batch.Kind(records[off])
		keyLen := uint64(binary.LittleEndian.Uint32(records[off+1:]))
		valLen := uint64(binary.LittleEndian.Uint32(records[off+5:]))
		body := off + recordHeaderSize
		if uint64(len(records))-body < keyLen+valLen {
			return nil, fmt.Errorf("%w: record at %d overruns used region", ErrCorrupted, off)
		}
		key := string(records[body : body+keyLen])

		switch kind {
		case batch.KindPut:
			index.ReplaceOrInsert(item{key: key, off: body + keyLen, vlen: uint32(valLen)})
		case batch.KindDelete:
			index.Delete(item{key: key})
		default:
			return nil, fmt.Errorf("%w: unknown record kind %d at %d", ErrCorrupted, kind, off)
		}
		off = body + keyLen + valLen
	}
	return index, nil
}

// recordSize is the size of the record Apply writes for op.
func recordSize(op batch.Op) uint64 {
	return recordHeaderSize + uint64(len(op.Key)) + uint64(len(op.Value))
}

// needsGrowth reports whether writing n more bytes crosses the threshold.
func needsGrowth(used, n, capacity uint64, pct uint8) bool {
	return (used+n)*100 > capacity*uint64(pct)
}

// Apply appends ops to the store and durably records lastSeq as applied.
// Ops with lastSeq at or below the already applied sequence are skipped, so
// replaying the same virtual commit is harmless. Before writing, a store
// with enough dead records is compacted, then the region is doubled until
// the used ratio after the write stays within the extend threshold.
func (s *Store) Apply(ops []batch.Op, lastSeq uint64) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur.Load()
	if cur == nil {
		return ApplyResult{}, ErrClosed
	}

	meta := cur.meta
	res := ApplyResult{OldCapacity: meta.Capacity, NewCapacity: meta.Capacity, Meta: meta}
	if lastSeq <= meta.LastSeq {
		return res, nil
	}

	var needed uint64
	for _, op := range ops {
		needed += recordSize(op)
	}

	if shouldCompact(meta, needed, s.threshold) {
		next, err := s.compactLocked(cur)
		if err != nil {
			return res, err
		}
		res.Compacted = true
		res.Reclaimed = meta.Used - next.meta.Used
		cur, meta = next, next.meta
	}

	r := cur.region
	if needsGrowth(meta.Used, needed, meta.Capacity, s.threshold) {
		newCap := meta.Capacity
		for needsGrowth(meta.Used, needed, newCap, s.threshold) {
			newCap *= 2
		}
		grown, err := s.grow(newCap)
		if err != nil {
			return res, err
		}
		r = grown
		meta.Capacity = newCap
		res.Grew = true
		res.NewCapacity = newCap
	}

	// records go past the published used offset; no snapshot references
	// those bytes yet
	start := metaPageSize + meta.Used
	off := start
	for _, op := range ops {
		key := string(op.Key)
		if op.IsDelete() {
			prev, ok := s.index.Delete(item{key: key})
			if !ok {
				continue
			}
			meta.LiveKeys--
			meta.LiveBytes -= uint64(len(prev.key)) + uint64(prev.vlen)
		} else {
			prev, replaced := s.index.ReplaceOrInsert(item{
				key:  key,
				off:  off - metaPageSize + recordHeaderSize + uint64(len(op.Key)),
				vlen: uint32(len(op.Value)),
			})
			if replaced {
				meta.LiveBytes -= uint64(len(prev.key)) + uint64(prev.vlen)
			} else {
				meta.LiveKeys++
			}
			meta.LiveBytes += uint64(len(op.Key)) + uint64(len(op.Value))
		}
		off += writeRecord(r.data[off:], op)
	}

	if off > start {
		if err := r.sync(int(start), int(off)); err != nil {
			s.abandon(cur, r)
			return res, err
		}
	}

	meta.TxID++
	meta.Used += off - start
	meta.Version++
	meta.LastSeq = lastSeq
	meta.encode(r.data[slotOffset(meta.TxID):])
	if err := r.sync(0, metaPageSize); err != nil {
		s.abandon(cur, r)
		return res, err
	}

	next := &snapshot{region: r, index: s.index.Clone(), meta: meta}
	s.cur.Store(next)
	if r != cur.region {
		cur.region.release()
	}

	res.Applied = true
	res.BytesWritten = off - start
	res.Meta = meta
	return res, nil
}

// abandon rolls the writer index back to the published snapshot after a
// failed apply. The bytes written past the published used offset are
// ignored on the next attempt.
func (s *Store) abandon(cur *snapshot, grown *region) {
	s.index = cur.index.Clone()
	if grown != cur.region {
		// keep the larger mapping current; the file already has that size
		s.cur.Store(&snapshot{region: grown, index: cur.index, meta: cur.meta})
		cur.region.release()
	}
}

func writeRecord(dst []byte, op batch.Op) uint64 {
	dst[0] = byte(op.Kind)
	binary.LittleEndian.PutUint32(dst[1:], uint32(len(op.Key)))
	binary.LittleEndian.PutUint32(dst[5:], uint32(len(op.Value)))
	n := recordHeaderSize
	n += copy(dst[n:], op.Key)
	n += copy(dst[n:], op.Value)
	return uint64(n)
}

// grow extends the file to hold capacity bytes of records and maps it.
func (s *Store) grow(capacity uint64) (*region, error) {
	if err := s.file.Truncate(int64(metaPageSize + capacity)); err != nil {
		return nil, fmt.Errorf("extend data file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return nil, fmt.Errorf("sync data file: %w", err)
	}
	return mapRegion(s.file, int(metaPageSize+capacity))
}

// acquire pins the current snapshot. The caller must release its region.
func (s *Store) acquire() (*snapshot, error) {
	for {
		snap := s.cur.Load()
		if snap == nil {
			return nil, ErrClosed
		}
		if snap.region.acquire() {
			return snap, nil
		}
	}
}

// Get returns a copy of the value stored for key.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := s.View(func(v *View) error {
		val, ok, err := v.Get(key)
		if err != nil || !ok {
			return err
		}
		out, found = bytes.Clone(val), true
		return nil
	})
	return out, found, err
}

// View runs fn against a pinned snapshot. Slices handed out by the View
// point into the mapping and are only valid until fn returns.
func (s *Store) View(fn func(v *View) error) error {
	snap, err := s.acquire()
	if err != nil {
		return err
	}
	defer snap.region.release()
	return fn(&View{snap: snap})
}

// Meta returns the meta of the current snapshot.
func (s *Store) Meta() Meta {
	snap := s.cur.Load()
	if snap == nil {
		return Meta{}
	}
	return snap.meta
}

// Path returns the data file path.
func (s *Store) Path() string {
	return s.path
}

// Close unpublishes the current snapshot and closes the file. The mapping
// is released once in-flight readers finish.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.cur.Swap(nil)
	if snap == nil {
		return nil
	}
	snap.region.release()
	return s.file.Close()
}

// View is a consistent read-only view of the store.
type View struct {
	snap *snapshot
}

// Meta returns the meta the view was taken at.
func (v *View) Meta() Meta {
	return v.snap.meta
}

// Get returns the value for key without copying.
func (v *View) Get(key []byte) ([]byte, bool, error) {
	it, ok := v.snap.index.Get(item{key: string(key)})
	if !ok {
		return nil, false, nil
	}
	val, err := v.value(it)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Ascend calls fn for every key with the given prefix in key order until fn
// returns false.
func (v *View) Ascend(prefix []byte, fn func(key, value []byte) bool) error {
	var err error
	p := string(prefix)
	v.snap.index.AscendGreaterOrEqual(item{key: p}, func(it item) bool {
		if !strings.HasPrefix(it.key, p) {
			return false
		}
		val, verr := v.value(it)
		if verr != nil {
			err = verr
			return false
		}
		return fn([]byte(it.key), val)
	})
	return err
}

// Len returns the number of live keys in the view.
func (v *View) Len() int {
	return v.snap.index.Len()
}

func (v *View) value(it item) ([]byte, error) {
	start := metaPageSize + it.off
	end := start + uint64(it.vlen)
	if end > metaPageSize+v.snap.meta.Used || end > uint64(len(v.snap.region.data)) {
		return nil, fmt.Errorf("%w: value for %q out of bounds", ErrCorrupted, it.key)
	}
	return v.snap.region.data[start:end:end], nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/btree"

	"github.com/marmos91/eradb/internal/fsutil"
	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/pkg/batch"
)

// compactSuffix names the file a compaction is built in before it replaces
// the data file.
const compactSuffix = ".compact"

// shouldCompact reports whether Apply compacts before writing n bytes: the
// write would otherwise grow the region and at least a quarter of the used
// bytes are dead.
func shouldCompact(meta Meta, n uint64, pct uint8) bool {
	dead := meta.DeadBytes()
	return dead > 0 && dead*4 >= meta.Used && needsGrowth(meta.Used, n, meta.Capacity, pct)
}

// Compact rewrites the store so it holds only the live records, keeping the
// capacity. It returns the number of bytes reclaimed. Readers keep the
// mapping they pinned until they finish.
func (s *Store) Compact() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur.Load()
	if cur == nil {
		return 0, ErrClosed
	}
	if cur.meta.DeadBytes() == 0 {
		return 0, nil
	}
	next, err := s.compactLocked(cur)
	if err != nil {
		return 0, err
	}
	return cur.meta.Used - next.meta.Used, nil
}

// compactLocked writes the live records of cur into a new file, makes it
// durable and renames it over the data file. A crash leaves either file in
// place and both hold the same state; a leftover compaction file is removed
// by Open.
func (s *Store) compactLocked(cur *snapshot) (_ *snapshot, err error) {
	tmp := s.path + compactSuffix
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create compaction file: %w", err)
	}

	var r *region
	swapped := false
	defer func() {
		if err == nil || swapped {
			return
		}
		if r != nil {
			r.release()
		}
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	capacity := cur.meta.Capacity
	if err = f.Truncate(int64(metaPageSize + capacity)); err != nil {
		return nil, fmt.Errorf("allocate compaction file: %w", err)
	}
	if r, err = mapRegion(f, int(metaPageSize+capacity)); err != nil {
		return nil, err
	}

	index := btree.NewG(btreeDegree, itemLess)
	view := &View{snap: cur}
	off := uint64(metaPageSize)
	cur.index.Ascend(func(it item) bool {
		var val []byte
		if val, err = view.value(it); err != nil {
			return false
		}
		index.ReplaceOrInsert(item{
			key:  it.key,
			off:  off - metaPageSize + recordHeaderSize + uint64(len(it.key)),
			vlen: it.vlen,
		})
		off += writeRecord(r.data[off:], batch.Op{Kind: batch.KindPut, Key: []byte(it.key), Value: val})
		return true
	})
	if err != nil {
		return nil, err
	}

	meta := cur.meta
	meta.TxID++
	meta.Used = off - metaPageSize
	meta.encode(r.data[slotOffset(meta.TxID):])
	if err = r.sync(0, int(off)); err != nil {
		return nil, err
	}
	if err = f.Sync(); err != nil {
		return nil, fmt.Errorf("sync compaction file: %w", err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return nil, fmt.Errorf("replace data file: %w", err)
	}

	// the data file is now the compacted one whatever happens next
	swapped = true
	old := s.file
	s.file = f
	s.index = index
	next := &snapshot{region: r, index: index.Clone(), meta: meta}
	s.cur.Store(next)
	cur.region.release()
	if cerr := old.Close(); cerr != nil {
		logger.Warn("Store: closing replaced data file failed", logger.KeyPath, s.path, logger.KeyError, cerr)
	}

	logger.Info("Store: compacted", logger.KeyPath, s.path,
		"reclaimed", cur.meta.Used-meta.Used, logger.KeyUsed, meta.Used, logger.KeyCapacity, meta.Capacity)
	if err = fsutil.SyncDir(filepath.Dir(s.path)); err != nil {
		return next, err
	}
	return next, nil
}

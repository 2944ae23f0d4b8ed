package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/eradb/pkg/batch"
)

func openStore(t *testing.T, path string, capacity uint64, pct uint8) *Store {
	t.Helper()
	s, err := Open(path, capacity, pct)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func puts(kv ...string) []batch.Op {
	var ops []batch.Op
	for i := 0; i+1 < len(kv); i += 2 {
		ops = append(ops, batch.Op{Kind: batch.KindPut, Key: []byte(kv[i]), Value: []byte(kv[i+1])})
	}
	return ops
}

func del(key string) batch.Op {
	return batch.Op{Kind: batch.KindDelete, Key: []byte(key)}
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := openStore(t, path, 1<<16, 80)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(metaPageSize+1<<16), info.Size())

	m := s.Meta()
	assert.Equal(t, uint64(1<<16), m.Capacity)
	assert.Zero(t, m.Used)
	assert.Zero(t, m.Version)
	assert.Zero(t, m.LastSeq)
}

func TestOpen_InvalidArguments(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	_, err := Open(path, 0, 80)
	assert.Error(t, err)
	_, err = Open(path, 1024, 0)
	assert.Error(t, err)
	_, err = Open(path, 1024, 101)
	assert.Error(t, err)
}

func TestApply_GetAndOverwrite(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1<<16, 80)

	res, err := s.Apply(puts("a", "1", "b", "2"), 1)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, uint32(1), res.Meta.Version)
	assert.Equal(t, uint64(2), res.Meta.LiveKeys)

	val, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(val))

	_, err = s.Apply(append(puts("a", "one"), del("b"), del("never")), 2)
	require.NoError(t, err)

	val, ok, err = s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", string(val))

	_, ok, err = s.Get([]byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)

	m := s.Meta()
	assert.Equal(t, uint32(2), m.Version)
	assert.Equal(t, uint64(2), m.LastSeq)
	assert.Equal(t, uint64(1), m.LiveKeys)
	assert.Equal(t, uint64(len("a")+len("one")), m.LiveBytes)
}

func TestApply_IdempotentBySequence(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1<<16, 80)

	_, err := s.Apply(puts("k", "v"), 5)
	require.NoError(t, err)
	before := s.Meta()

	res, err := s.Apply(puts("k", "v"), 5)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, before, s.Meta())

	res, err = s.Apply(puts("k", "other"), 3)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	val, _, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(val))
}

func TestReopen_RebuildsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, 1<<16, 80)
	require.NoError(t, err)

	_, err = s.Apply(puts("a", "1", "b", "2", "c", "3"), 1)
	require.NoError(t, err)
	_, err = s.Apply(append(puts("a", "10"), del("c")), 2)
	require.NoError(t, err)
	want := s.Meta()
	require.NoError(t, s.Close())

	reopened := openStore(t, path, 1<<16, 80)
	got := reopened.Meta()
	assert.Equal(t, want, got)

	val, ok, err := reopened.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10", string(val))

	_, ok, err = reopened.Get([]byte("c"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApply_Growth(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1000, 80)

	// 9 byte header + 1 byte key + 890 byte value = 900 > 800
	res, err := s.Apply(puts("k", string(bytes.Repeat([]byte("x"), 890))), 1)
	require.NoError(t, err)
	assert.True(t, res.Grew)
	assert.Equal(t, uint64(1000), res.OldCapacity)
	assert.Equal(t, uint64(2000), res.NewCapacity)

	m := s.Meta()
	assert.Equal(t, uint64(900), m.Used)
	assert.Equal(t, uint64(2000), m.Capacity)
	assert.LessOrEqual(t, m.Used, m.Capacity)
	assert.LessOrEqual(t, m.Used*100, m.Capacity*80)

	val, ok, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, val, 890)
}

func TestApply_GrowthDoublesUntilBelowThreshold(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 100, 50)

	res, err := s.Apply(puts("k", string(bytes.Repeat([]byte("x"), 390))), 1)
	require.NoError(t, err)
	// 400 bytes need capacity >= 800 at 50%
	assert.Equal(t, uint64(800), res.NewCapacity)
}

func TestApply_GrowthRetiresOldRegion(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1000, 80)

	_, err := s.Apply(puts("old", "value"), 1)
	require.NoError(t, err)

	old, err := s.acquire()
	require.NoError(t, err)

	_, err = s.Apply(puts("big", string(bytes.Repeat([]byte("x"), 2000))), 2)
	require.NoError(t, err)
	assert.NotSame(t, old.region, s.cur.Load().region)

	// the pinned snapshot still reads through the old mapping
	assert.False(t, old.region.unmapped.Load())
	v := &View{snap: old}
	val, ok, err := v.Get([]byte("old"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", string(val))
	_, ok, err = v.Get([]byte("big"))
	require.NoError(t, err)
	assert.False(t, ok, "old snapshot must not see later writes")

	old.region.release()
	assert.True(t, old.region.unmapped.Load())
}

func TestReopen_LargerFileThanMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, 1000, 80)
	require.NoError(t, err)
	_, err = s.Apply(puts("k", "v"), 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, os.Truncate(path, metaPageSize+4000))

	reopened := openStore(t, path, 1000, 80)
	assert.Equal(t, uint64(4000), reopened.Meta().Capacity)
	val, ok, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(val))
}

func TestReopen_TornMetaFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, 1<<16, 80)
	require.NoError(t, err)
	_, err = s.Apply(puts("k", "v1"), 1)
	require.NoError(t, err)
	_, err = s.Apply(puts("k", "v2"), 2)
	require.NoError(t, err)
	current := s.Meta()
	require.NoError(t, s.Close())

	// damage the slot holding the latest txid
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xde, 0xad}, int64(slotOffset(current.TxID)+20))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openStore(t, path, 1<<16, 80)
	m := reopened.Meta()
	assert.Equal(t, current.TxID-1, m.TxID)
	assert.Equal(t, uint64(1), m.LastSeq)

	val, ok, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(val))
}

func TestOpen_BothSlotsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, 1024, 80)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("garbage"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, 1024, 80)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestOpen_ZeroMetaPageReinitializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, make([]byte, metaPageSize+512), 0o644))

	// an interrupted initialization is started over at the requested size
	s := openStore(t, path, 1024, 80)
	assert.Equal(t, uint64(1024), s.Meta().Capacity)
	assert.Zero(t, s.Meta().Used)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(metaPageSize+1024), info.Size())
}

func TestOpen_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	page := make([]byte, metaPageSize+1024)
	m := Meta{Capacity: 1024}
	m.encode(page)

	// a well-formed slot from a future format
	binary.LittleEndian.PutUint16(page[4:6], metaFormat+1)
	binary.LittleEndian.PutUint64(page[64:72], xxhash.Sum64(page[:metaBodySize]))
	require.NoError(t, os.WriteFile(path, page, 0o644))

	_, err := Open(path, 1024, 80)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestView_Ascend(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1<<16, 80)

	var ops []batch.Op
	for i := 0; i < 5; i++ {
		ops = append(ops, puts(fmt.Sprintf("user:%d", i), fmt.Sprint(i))...)
	}
	ops = append(ops, puts("other", "x", "user", "root")...)
	_, err := s.Apply(ops, 1)
	require.NoError(t, err)

	var keys []string
	err = s.View(func(v *View) error {
		assert.Equal(t, 7, v.Len())
		return v.Ascend([]byte("user:"), func(k, _ []byte) bool {
			keys = append(keys, string(k))
			return len(keys) < 3
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user:0", "user:1", "user:2"}, keys)
}

func TestClosed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), FileName), 1024, 80)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Apply(puts("k", "v"), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

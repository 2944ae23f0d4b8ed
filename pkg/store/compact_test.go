package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeta_DeadBytes(t *testing.T) {
	assert.Zero(t, Meta{}.DeadBytes())
	assert.Zero(t, Meta{Used: 11, LiveKeys: 1, LiveBytes: 2}.DeadBytes())
	assert.Equal(t, uint64(21), Meta{Used: 32, LiveKeys: 1, LiveBytes: 2}.DeadBytes())
}

// Overwriting one key forever must not grow the store: the dead versions
// are compacted away whenever a write would otherwise cross the threshold.
func TestApply_CompactsInsteadOfGrowing(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := openStore(t, path, 1000, 80)

	compactions := 0
	for i := 1; i <= 200; i++ {
		res, err := s.Apply(puts("k", fmt.Sprintf("%0100d", i)), uint64(i))
		require.NoError(t, err)
		require.False(t, res.Grew, "write %d grew the store", i)
		if res.Compacted {
			compactions++
			assert.NotZero(t, res.Reclaimed)
		}

		val, ok, err := s.Get([]byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("%0100d", i), string(val))
	}
	assert.Positive(t, compactions)

	_, err := s.Apply(append(puts(), del("k")), 201)
	require.NoError(t, err)

	m := s.Meta()
	assert.Equal(t, uint64(1000), m.Capacity)
	assert.LessOrEqual(t, m.Used, uint64(800))
	assert.Zero(t, m.LiveKeys)
	assert.Zero(t, m.LiveBytes)

	reclaimed, err := s.Compact()
	require.NoError(t, err)
	assert.Equal(t, m.Used, reclaimed)
	assert.Zero(t, s.Meta().Used)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(metaPageSize+1000), info.Size())
}

func TestCompact_NothingToReclaim(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1<<16, 80)
	_, err := s.Apply(puts("a", "1", "b", "2"), 1)
	require.NoError(t, err)
	before := s.Meta()

	reclaimed, err := s.Compact()
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
	assert.Equal(t, before, s.Meta())
}

func TestCompact_ReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, 1<<16, 80)
	require.NoError(t, err)

	_, err = s.Apply(puts("a", "1", "b", "2", "c", "3"), 1)
	require.NoError(t, err)
	_, err = s.Apply(append(puts("a", "one"), del("b")), 2)
	require.NoError(t, err)

	reclaimed, err := s.Compact()
	require.NoError(t, err)
	assert.Positive(t, reclaimed)
	compacted := s.Meta()
	assert.Zero(t, compacted.DeadBytes())
	assert.Equal(t, uint32(2), compacted.Version)
	assert.Equal(t, uint64(2), compacted.LastSeq)
	require.NoError(t, s.Close())

	_, err = os.Stat(path + compactSuffix)
	assert.True(t, os.IsNotExist(err))

	reopened := openStore(t, path, 1<<16, 80)
	m := reopened.Meta()
	assert.Equal(t, compacted.Used, m.Used)
	assert.Equal(t, compacted.Version, m.Version)
	assert.Equal(t, compacted.LastSeq, m.LastSeq)
	assert.Equal(t, uint64(2), m.LiveKeys)

	got := map[string]string{}
	require.NoError(t, reopened.View(func(v *View) error {
		return v.Ascend(nil, func(key, value []byte) bool {
			got[string(key)] = string(value)
			return true
		})
	}))
	assert.Equal(t, map[string]string{"a": "one", "c": "3"}, got)

	// writes after a compaction append behind the live records
	_, err = reopened.Apply(puts("d", "4"), 3)
	require.NoError(t, err)
	val, ok, err := reopened.Get([]byte("d"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "4", string(val))
}

func TestCompact_PinnedSnapshotSurvives(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), FileName), 1<<16, 80)
	_, err := s.Apply(puts("a", "1", "b", "2"), 1)
	require.NoError(t, err)
	_, err = s.Apply(puts("a", "3"), 2)
	require.NoError(t, err)

	old, err := s.acquire()
	require.NoError(t, err)

	_, err = s.Compact()
	require.NoError(t, err)
	assert.NotSame(t, old.region, s.cur.Load().region)

	// the replaced file stays mapped for the pinned reader
	assert.False(t, old.region.unmapped.Load())
	v := &View{snap: old}
	val, ok, err := v.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", string(val))

	old.region.release()
	assert.True(t, old.region.unmapped.Load())

	val, ok, err = s.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(val))
}

func TestOpen_RemovesStaleCompactionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, 1<<16, 80)
	require.NoError(t, err)
	_, err = s.Apply(puts("k", "v"), 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// a compaction that crashed before its rename
	require.NoError(t, os.WriteFile(path+compactSuffix, []byte("partial"), 0o644))

	reopened := openStore(t, path, 1<<16, 80)
	_, err = os.Stat(path + compactSuffix)
	assert.True(t, os.IsNotExist(err))

	val, ok, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(val))
}

func TestCompact_Closed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), FileName), 1<<16, 80)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Compact()
	assert.ErrorIs(t, err, ErrClosed)
}

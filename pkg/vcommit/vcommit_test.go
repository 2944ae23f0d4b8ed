package vcommit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/eradb/pkg/batch"
	"github.com/marmos91/eradb/pkg/journal"
)

func pushEras(t *testing.T, batches ...*batch.Batch) []*journal.Era {
	t.Helper()
	j, err := journal.Open(t.TempDir(), len(batches)+1)
	require.NoError(t, err)
	for _, b := range batches {
		_, err := j.Push(b)
		require.NoError(t, err)
	}
	return j.Snapshot()
}

func stage(t *testing.T, vc *VirtualCommit) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteContent(path, vc))
	require.NoError(t, WriteMarker(path, vc))
	return path
}

func TestBuild_MergesNewestWins(t *testing.T) {
	eras := pushEras(t,
		batch.New().Put([]byte("a"), []byte("1")).Put([]byte("b"), []byte("1")),
		batch.New().Put([]byte("a"), []byte("2")).Delete([]byte("b")),
		batch.New().Put([]byte("c"), []byte("3")),
	)

	vc := Build(eras)
	assert.Equal(t, uint64(1), vc.FirstSeq)
	assert.Equal(t, uint64(3), vc.LastSeq)
	require.Len(t, vc.Ops, 3)

	op, ok := vc.Lookup([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, "2", string(op.Value))

	op, ok = vc.Lookup([]byte("b"))
	require.True(t, ok)
	assert.True(t, op.IsDelete())

	_, ok = vc.Lookup([]byte("zz"))
	assert.False(t, ok)
}

func TestBuild_Empty(t *testing.T) {
	vc := Build(nil)
	assert.True(t, vc.Empty())
}

func TestStageAndLoad(t *testing.T) {
	eras := pushEras(t,
		batch.New().Put([]byte("k1"), []byte("v1")),
		batch.New().Delete([]byte("k2")),
	)
	vc := Build(eras)
	path := stage(t, vc)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, vc.ID, loaded.ID)
	assert.Equal(t, vc.FirstSeq, loaded.FirstSeq)
	assert.Equal(t, vc.LastSeq, loaded.LastSeq)
	assert.Equal(t, vc.Digest(), loaded.Digest())
	require.Len(t, loaded.Ops, 2)
	assert.Equal(t, "k1", string(loaded.Ops[0].Key))
	assert.Equal(t, "v1", string(loaded.Ops[0].Value))
	assert.True(t, loaded.Ops[1].IsDelete())
}

func TestWriteContent_Exists(t *testing.T) {
	vc := Build(pushEras(t, batch.New().Put([]byte("k"), []byte("v"))))
	path := stage(t, vc)

	err := WriteContent(path, vc)
	assert.ErrorIs(t, err, ErrExists)
}

func TestLoad_Unmarked(t *testing.T) {
	vc := Build(pushEras(t, batch.New().Put([]byte("k"), []byte("v"))))
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteContent(path, vc))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrCorruptVirtualCommit)
}

func TestLoad_Corruptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(data []byte) []byte
	}{
		{"truncated marker", func(d []byte) []byte { return d[:len(d)-5] }},
		{"flipped payload", func(d []byte) []byte { d[headerSize] ^= 0xff; return d }},
		{"flipped digest", func(d []byte) []byte { d[len(d)-1] ^= 0xff; return d }},
		{"bad marker magic", func(d []byte) []byte { d[len(d)-markerSize] = 'X'; return d }},
		{"bad header magic", func(d []byte) []byte { d[0] = 'X'; return d }},
		{"trailing garbage", func(d []byte) []byte { return append(d, 0) }},
		{"empty", func(d []byte) []byte { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc := Build(pushEras(t, batch.New().Put([]byte("key"), []byte("value"))))
			path := stage(t, vc)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, tt.mutate(data), 0o644))

			_, err = Load(path)
			assert.ErrorIs(t, err, ErrCorruptVirtualCommit)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.True(t, os.IsNotExist(err))
}

func TestExistsAndRemove(t *testing.T) {
	vc := Build(pushEras(t, batch.New().Put([]byte("k"), []byte("v"))))
	path := stage(t, vc)

	ok, err := Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, Remove(path))
	ok, err = Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, Remove(path))
}

func TestMachine_Transitions(t *testing.T) {
	var m Machine
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Transition(StateStaged))
	require.NoError(t, m.Transition(StateMarked))
	assert.ErrorIs(t, m.Transition(StateIdle), ErrInvalidTransition)
	require.NoError(t, m.Transition(StateMerged))
	require.NoError(t, m.Transition(StateIdle))

	assert.ErrorIs(t, m.Transition(StateMarked), ErrInvalidTransition)

	require.NoError(t, m.Transition(StateStaged))
	require.NoError(t, m.Transition(StateIdle), "abandoned staging returns to idle")

	m.Restore(StateMarked)
	assert.Equal(t, "marked", m.State().String())
}

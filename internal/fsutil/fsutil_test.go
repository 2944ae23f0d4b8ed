package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")

	require.NoError(t, CreateExclusive(path, 0o644, []byte("ab"), []byte("cd")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	err = CreateExclusive(path, 0o644, []byte("x"))
	assert.ErrorIs(t, err, os.ErrExist)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data), "existing file must be untouched")
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, Remove(path), "removing a missing file is a no-op")
}

func TestSyncDir_Missing(t *testing.T) {
	assert.Error(t, SyncDir(filepath.Join(t.TempDir(), "nope")))
}

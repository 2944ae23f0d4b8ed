package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/eradb/pkg/vcommit"
)

func crashAt(step flushStep) func(flushStep) error {
	return func(s flushStep) error {
		if s == step {
			return errCrash
		}
		return nil
	}
}

func eraPath(dir string, seq uint64) string {
	return filepath.Join(dir, journalDirName, fmt.Sprintf("%020d.era", seq))
}

// seedAndCrash commits two eras and one flushed key, then fails a flush at
// step. It returns the still-open engine.
func seedAndCrash(t *testing.T, dir string, step flushStep) *Engine {
	t.Helper()
	e, err := Open(context.Background(), dir, testOptions())
	require.NoError(t, err)

	put(t, e, "base", "0")
	require.NoError(t, e.Flush(context.Background()))
	put(t, e, "a", "1", "b", "1")
	put(t, e, "a", "2")
	require.NoError(t, e.Delete(context.Background(), []byte("base")))

	e.flushHook = crashAt(step)
	err = e.Flush(context.Background())
	require.ErrorIs(t, err, errCrash)
	e.flushHook = nil
	return e
}

func assertSeededState(t *testing.T, e *Engine) {
	t.Helper()
	assert.Equal(t, "2", mustGet(t, e, "a"))
	assert.Equal(t, "1", mustGet(t, e, "b"))
	assertMissing(t, e, "base")
}

func TestCrash_RecoverAtOpen(t *testing.T) {
	tests := []struct {
		step        flushStep
		outcome     VCOutcome
		version     uint32
		pendingEras int
	}{
		{stepStaged, VCDiscarded, 1, 3},
		{stepMarked, VCApplied, 2, 0},
		{stepJournalTrimmed, VCApplied, 2, 0},
		{stepMerged, VCAlreadyApplied, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			dir := t.TempDir()
			e := seedAndCrash(t, dir, tt.step)

			// the interrupted flush is invisible to readers
			assertSeededState(t, e)
			require.NoError(t, e.Close())

			e = openDB(t, dir, testOptions())
			r := e.LastRecovery()
			require.NotNil(t, r)
			assert.Equal(t, tt.outcome, r.VirtualCommit)
			assert.True(t, r.Changed())
			assert.Equal(t, tt.pendingEras, r.RetainedEras)

			p := e.Properties()
			assert.Equal(t, tt.version, p.Version)
			assert.Equal(t, tt.pendingEras, p.PendingEras)
			assert.Equal(t, "idle", p.FlushState)
			assertSeededState(t, e)

			_, err := os.Stat(filepath.Join(dir, vcommit.FileName))
			assert.True(t, os.IsNotExist(err))

			// sequence numbering continues after everything seen
			put(t, e, "c", "3")
			assert.Equal(t, uint64(5), e.Properties().LastSequence)
			require.NoError(t, e.Flush(context.Background()))
			assertSeededState(t, e)
			assert.Equal(t, "3", mustGet(t, e, "c"))
			assert.Equal(t, tt.version+1, e.Properties().Version)
		})
	}
}

func TestCrash_ResumedByNextWrite(t *testing.T) {
	tests := []struct {
		step    flushStep
		state   string
		outcome VCOutcome
	}{
		{stepStaged, "staged", VCDiscarded},
		{stepMarked, "marked", VCApplied},
		{stepJournalTrimmed, "marked", VCApplied},
		{stepMerged, "merged", VCAlreadyApplied},
	}
	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			e := seedAndCrash(t, t.TempDir(), tt.step)
			t.Cleanup(func() { _ = e.Close() })
			assert.Equal(t, tt.state, e.Properties().FlushState)

			put(t, e, "c", "3")
			assert.Equal(t, "idle", e.Properties().FlushState)
			assert.Equal(t, tt.outcome, e.LastRecovery().VirtualCommit)
			assertSeededState(t, e)
			assert.Equal(t, "3", mustGet(t, e, "c"))

			require.NoError(t, e.Flush(context.Background()))
			assertSeededState(t, e)
			assert.Zero(t, e.Properties().PendingEras)
		})
	}
}

func TestCrash_RollbackAfterDiscardedFlush(t *testing.T) {
	e := seedAndCrash(t, t.TempDir(), stepStaged)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Rollback(context.Background()))
	assert.Equal(t, "2", mustGet(t, e, "a"))
	assert.Equal(t, "0", mustGet(t, e, "base"))
}

func TestRecover_TornMarker(t *testing.T) {
	dir := t.TempDir()
	e := seedAndCrash(t, dir, stepMarked)
	require.NoError(t, e.Close())

	path := filepath.Join(dir, vcommit.FileName)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-1))

	e = openDB(t, dir, testOptions())
	assert.Equal(t, VCDiscarded, e.LastRecovery().VirtualCommit)
	assert.Equal(t, uint32(1), e.Properties().Version)
	assert.Equal(t, 3, e.Properties().PendingEras)
	assertSeededState(t, e)
}

func TestRecover_CorruptEra(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(context.Background(), dir, testOptions())
	require.NoError(t, err)
	put(t, e, "k1", "v1")
	put(t, e, "k2", "v2")
	put(t, e, "k3", "v3")
	require.NoError(t, e.Close())

	path := eraPath(dir, 2)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	e = openDB(t, dir, testOptions())
	r := e.LastRecovery()
	assert.Equal(t, 1, r.CorruptEras)
	assert.Equal(t, 2, r.RetainedEras)
	assert.Equal(t, uint64(4), r.NextSequence)

	assert.Equal(t, "v1", mustGet(t, e, "k1"))
	assertMissing(t, e, "k2")
	assert.Equal(t, "v3", mustGet(t, e, "k3"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRecover_DropsErasCoveredByStore(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(context.Background(), dir, testOptions())
	require.NoError(t, err)
	put(t, e, "k", "old")
	saved, err := os.ReadFile(eraPath(dir, 1))
	require.NoError(t, err)
	require.NoError(t, e.Flush(context.Background()))
	put(t, e, "k", "new")
	require.NoError(t, e.Flush(context.Background()))
	require.NoError(t, e.Close())

	// an era that outlived its flush must not shadow newer store state
	require.NoError(t, os.WriteFile(eraPath(dir, 1), saved, 0o644))

	e = openDB(t, dir, testOptions())
	r := e.LastRecovery()
	assert.Equal(t, 1, r.DroppedEras)
	assert.Zero(t, r.RetainedEras)
	assert.Equal(t, "new", mustGet(t, e, "k"))
	assert.Equal(t, uint64(3), r.NextSequence)
}

func TestRecover_Idempotent(t *testing.T) {
	dir := t.TempDir()
	e := seedAndCrash(t, dir, stepJournalTrimmed)
	t.Cleanup(func() { _ = e.Close() })

	r, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VCApplied, r.VirtualCommit)

	r, err = e.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VCNone, r.VirtualCommit)
	assert.False(t, r.Changed())
	assert.Equal(t, uint32(2), r.Version)
	assertSeededState(t, e)
}

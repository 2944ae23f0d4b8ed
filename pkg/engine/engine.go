// Package engine is the database: it ties the journal, the virtual commit
// and the mapped store together behind Get, Commit, Flush, Rollback and
// Recover.
//
// Writes are durable once Commit returns: every batch becomes an era file
// in the journal. Flush merges the pending eras into a virtual commit,
// stages it on disk with a completion marker and applies it to the mapped
// store. Reads resolve a key against the cache, then the journal from the
// newest era back, then the virtual commit of a flush in progress, then the
// mapped store.
//
// Crash safety relies only on the order of writes, fsyncs and unlinks:
//
//  1. virtual commit content is durable before its marker;
//  2. eras are deleted only once the marker is durable;
//  3. the virtual commit is deleted only once the store meta recording its
//     last sequence is durable.
//
// Recover, run at Open, completes or discards whatever a crash left behind.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/cache"
	"github.com/marmos91/eradb/pkg/journal"
	"github.com/marmos91/eradb/pkg/store"
	"github.com/marmos91/eradb/pkg/vcommit"
)

const journalDirName = "journal"

// Properties is a point-in-time view of the database state.
type Properties struct {
	// Version counts the flushes applied to the mapped store.
	Version uint32

	// UsedMemory is the number of bytes occupied in the record region.
	UsedMemory uint64

	// Capacity is the size of the record region.
	Capacity uint64

	PendingEras  int
	LastSequence uint64
	LiveKeys     uint64
	LiveBytes    uint64
	FlushState   string
}

// Engine is an open database.
//
// Thread safety: all methods are safe for concurrent use. Commit, Flush,
// Rollback and Recover are serialised; Get and Scan never wait for them.
type Engine struct {
	dir  string
	opts Options

	lock    *dirLock
	journal *journal.Journal
	store   *store.Store

	cache     cache.Cache
	ownsCache bool
	metrics   Metrics

	// writeMu serialises every operation that changes the journal, the
	// virtual commit or the store.
	writeMu sync.Mutex

	// flushMu queues explicit flush requests ahead of writeMu.
	flushMu  sync.Mutex
	flushing atomic.Bool

	// cacheMu orders cache reads and fills (shared) against the write
	// window (exclusive). While writing is set the journal may change under
	// a reader, so readers bypass the cache entirely.
	cacheMu sync.RWMutex
	writing bool

	fsm vcommit.Machine

	// pending is the virtual commit being merged, visible to readers from
	// the moment its eras may disappear until the store reflects it.
	pending atomic.Pointer[vcommit.VirtualCommit]

	recovery *RecoveryReport
	closed   atomic.Bool

	// flushHook, when set, runs at each flush step. An error aborts the
	// flush on the spot, leaving disk state as a crash would.
	flushHook func(step flushStep) error
}

// Open opens or creates the database in dir and recovers it from any
// interrupted flush.
func Open(ctx context.Context, dir string, opts Options, deps ...Option) (_ *Engine, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanOpen, attribute.String(telemetry.AttrDB, dir))
	defer func() { telemetry.End(span, err) }()

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioErr("create database dir", err)
	}

	e := &Engine{dir: dir, opts: opts}
	for _, dep := range deps {
		dep(e)
	}

	e.lock, err = lockDir(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			e.release()
		}
	}()

	e.journal, err = journal.Open(filepath.Join(dir, journalDirName), opts.MaxJournalEras)
	if err != nil {
		return nil, ioErr("open journal", err)
	}

	e.store, err = store.Open(filepath.Join(dir, store.FileName), opts.PreallocatedBytes, opts.ExtendThresholdPct)
	if err != nil {
		if errors.Is(err, store.ErrCorrupted) || errors.Is(err, store.ErrVersionMismatch) {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return nil, ioErr("open store", err)
	}

	if e.cache == nil {
		rc, err := cache.NewRistretto(cache.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		e.cache, e.ownsCache = rc, true
	}

	e.writeMu.Lock()
	e.recovery, err = e.recoverLocked(ctx)
	e.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	meta := e.store.Meta()
	logger.InfoCtx(ctx, "Database opened",
		logger.KeyPath, dir,
		logger.KeyVersion, meta.Version,
		logger.KeyEras, e.journal.Len(),
		logger.KeyCapacity, meta.Capacity,
		logger.KeyUsed, meta.Used)

	e.recordProperties()
	return e, nil
}

// Dir returns the database directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Options returns the options the database was opened with.
func (e *Engine) Options() Options {
	return e.opts
}

// LastRecovery returns the report of the most recent recovery, the one run
// by Open unless Recover was called since.
func (e *Engine) LastRecovery() *RecoveryReport {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.recovery
}

// Properties returns the current database state.
func (e *Engine) Properties() Properties {
	meta := e.store.Meta()
	return Properties{
		Version:      meta.Version,
		UsedMemory:   meta.Used,
		Capacity:     meta.Capacity,
		PendingEras:  e.journal.Len(),
		LastSequence: e.journal.LastSequence(),
		LiveKeys:     meta.LiveKeys,
		LiveBytes:    meta.LiveBytes,
		FlushState:   e.fsm.State().String(),
	}
}

// CacheStats returns the cache statistics, if the cache tracks them.
func (e *Engine) CacheStats() (cache.Stats, bool) {
	sp, ok := e.cache.(cache.StatsProvider)
	if !ok {
		return cache.Stats{}, false
	}
	return sp.Stats(), true
}

// Close releases the database. Pending eras stay in the journal and are
// visible again on the next Open. Close waits for a running flush.
func (e *Engine) Close() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := e.release()
	logger.Info("Database closed", logger.KeyPath, e.dir, logger.Err(err))
	return err
}

// release closes whatever Open managed to set up.
func (e *Engine) release() error {
	var errs []error
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if e.cache != nil && e.ownsCache {
		e.cache.Close()
	}
	if err := e.lock.unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) vcPath() string {
	return filepath.Join(e.dir, vcommit.FileName)
}

func (e *Engine) recordProperties() {
	if e.metrics != nil {
		e.metrics.RecordProperties(e.Properties())
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/store"
	"github.com/marmos91/eradb/pkg/vcommit"
)

// flushStep names the points of a flush where a crash leaves a distinct
// state on disk.
type flushStep int

const (
	// content durable, marker not written
	stepStaged flushStep = iota + 1
	// marker durable, eras still present
	stepMarked
	// eras deleted, store not updated
	stepJournalTrimmed
	// store updated, virtual commit still present
	stepMerged
)

func (s flushStep) String() string {
	switch s {
	case stepStaged:
		return "staged"
	case stepMarked:
		return "marked"
	case stepJournalTrimmed:
		return "journal_trimmed"
	case stepMerged:
		return "merged"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

func (e *Engine) hook(s flushStep) error {
	if e.flushHook == nil {
		return nil
	}
	return e.flushHook(s)
}

// Flush merges every pending era into the mapped store. Concurrent calls
// queue; a call that finds the journal empty returns nil without changing
// the version.
func (e *Engine) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	return e.flush(ctx)
}

// TryFlush is Flush, except that it fails with ErrFlushInProgress instead of
// waiting when another flush is running.
func (e *Engine) TryFlush(ctx context.Context) error {
	if e.flushing.Load() || !e.flushMu.TryLock() {
		return ErrFlushInProgress
	}
	defer e.flushMu.Unlock()
	return e.flush(ctx)
}

func (e *Engine) flush(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFlush)
	defer func() { telemetry.End(span, err) }()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	return e.flushLocked(ctx, ReasonManual)
}

// flushLocked runs a full flush. The caller holds writeMu.
func (e *Engine) flushLocked(ctx context.Context, reason string) (err error) {
	if err := e.resumeLocked(ctx); err != nil {
		return err
	}

	eras := e.journal.Snapshot()
	if len(eras) == 0 {
		return nil
	}

	e.flushing.Store(true)
	defer e.flushing.Store(false)

	start := time.Now()
	vc := vcommit.Build(eras)
	var res store.ApplyResult
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveFlush(reason, len(eras), len(vc.Ops), res.BytesWritten, time.Since(start), err)
		}
	}()

	telemetry.SetAttributes(ctx,
		telemetry.Eras(len(eras)),
		attribute.String(telemetry.AttrFlushID, vc.ID.String()))
	logger.DebugCtx(ctx, "Flush: staging virtual commit",
		logger.KeyFlushID, vc.ID.String(),
		logger.KeyEras, len(eras),
		logger.KeyKeys, len(vc.Ops),
		logger.KeyReason, reason)

	path := e.vcPath()
	if err := e.fsm.Transition(vcommit.StateStaged); err != nil {
		return err
	}
	if err := vcommit.WriteContent(path, vc); err != nil {
		if !errors.Is(err, vcommit.ErrExists) {
			_ = vcommit.Remove(path)
		}
		_ = e.fsm.Transition(vcommit.StateIdle)
		return ioErr("stage virtual commit", err)
	}
	if err := e.hook(stepStaged); err != nil {
		return err
	}

	if err := vcommit.WriteMarker(path, vc); err != nil {
		if rmErr := vcommit.Remove(path); rmErr == nil {
			_ = e.fsm.Transition(vcommit.StateIdle)
		}
		return ioErr("mark virtual commit", err)
	}
	if err := e.fsm.Transition(vcommit.StateMarked); err != nil {
		return err
	}
	if err := e.hook(stepMarked); err != nil {
		return err
	}

	res, err = e.mergeLocked(ctx, vc)
	if err != nil {
		return err
	}

	telemetry.SetAttributes(ctx,
		attribute.Int64(telemetry.AttrVersion, int64(res.Meta.Version)),
		attribute.Bool(telemetry.AttrGrew, res.Grew),
		attribute.Bool(telemetry.AttrCompact, res.Compacted))
	logger.InfoCtx(ctx, "Flush: completed",
		logger.KeyFlushID, vc.ID.String(),
		logger.KeyEras, len(eras),
		logger.KeyKeys, len(vc.Ops),
		logger.KeyBytes, res.BytesWritten,
		logger.KeyVersion, res.Meta.Version,
		logger.KeyReason, reason,
		logger.KeyDuration, logger.Duration(start))
	e.recordProperties()
	return nil
}

// mergeLocked takes a marked virtual commit to completion: publish it to
// readers, drop the eras it covers, apply it to the store, retire it. Every
// step is idempotent, so a virtual commit interrupted anywhere after its
// marker can be merged again from the start.
func (e *Engine) mergeLocked(ctx context.Context, vc *vcommit.VirtualCommit) (store.ApplyResult, error) {
	path := e.vcPath()

	e.pending.Store(vc)
	if _, err := e.journal.DropThrough(vc.LastSeq); err != nil {
		return store.ApplyResult{}, ioErr("drop merged eras", err)
	}
	if err := e.hook(stepJournalTrimmed); err != nil {
		return store.ApplyResult{}, err
	}

	res, err := e.store.Apply(vc.Ops, vc.LastSeq)
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			return res, ErrClosed
		}
		return res, ioErr("apply virtual commit", err)
	}
	if res.Compacted {
		e.observeCompaction(ctx, res.Reclaimed)
	}
	if res.Grew {
		logger.InfoCtx(ctx, "Store extended",
			logger.KeyCapacity, res.NewCapacity,
			"old_capacity", res.OldCapacity,
			logger.KeyUsed, res.Meta.Used)
		if e.metrics != nil {
			e.metrics.ObserveGrowth(res.OldCapacity, res.NewCapacity)
		}
	}
	if err := e.fsm.Transition(vcommit.StateMerged); err != nil {
		return res, err
	}
	e.pending.Store(nil)
	if err := e.hook(stepMerged); err != nil {
		return res, err
	}

	if err := vcommit.Remove(path); err != nil {
		return res, ioErr("retire virtual commit", err)
	}
	if err := e.fsm.Transition(vcommit.StateIdle); err != nil {
		return res, err
	}
	return res, nil
}

// resumeLocked finishes or discards a flush interrupted earlier in this
// process before a new write operation starts.
func (e *Engine) resumeLocked(ctx context.Context) error {
	if e.fsm.State() == vcommit.StateIdle {
		return nil
	}
	logger.WarnCtx(ctx, "Resuming interrupted flush", logger.KeyState, e.fsm.State().String())
	telemetry.SetAttributes(ctx, attribute.Bool(telemetry.AttrResumed, true))

	r, err := e.recoverLocked(ctx)
	if err != nil {
		return err
	}
	e.recovery = r
	return nil
}

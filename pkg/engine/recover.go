package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/vcommit"
)

// VCOutcome is what recovery did with a staged virtual commit.
type VCOutcome string

const (
	// VCNone: no virtual commit was staged.
	VCNone VCOutcome = "none"

	// VCApplied: a marked virtual commit was applied to the store.
	VCApplied VCOutcome = "applied"

	// VCAlreadyApplied: the store already reflected the marked virtual
	// commit; only cleanup was left.
	VCAlreadyApplied VCOutcome = "already_applied"

	// VCDiscarded: the staged file had no valid marker and was deleted.
	VCDiscarded VCOutcome = "discarded"
)

// RecoveryReport describes a recovery run.
type RecoveryReport struct {
	VirtualCommit VCOutcome
	FlushID       string
	AppliedKeys   int

	// CorruptEras is the number of era files that failed validation and
	// were deleted.
	CorruptEras int

	// DroppedEras is the number of eras already covered by the store.
	DroppedEras int

	// RetainedEras is the number of eras left pending.
	RetainedEras int

	NextSequence uint64
	Version      uint32
	Duration     time.Duration
}

// Changed reports whether recovery modified anything on disk.
func (r *RecoveryReport) Changed() bool {
	return r.VirtualCommit != VCNone || r.CorruptEras > 0 || r.DroppedEras > 0
}

// Recover brings the database to a consistent state after an unclean
// shutdown. Open runs it; calling it again is harmless.
//
// A marked virtual commit is applied unless the store already reflects it,
// then removed together with the eras it covers. An unmarked one is
// deleted: its eras were never touched. Corrupt eras are deleted and valid
// ones kept. Sequence numbering continues after every sequence seen.
func (e *Engine) Recover(ctx context.Context) (_ *RecoveryReport, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRecover)
	defer func() { telemetry.End(span, err) }()

	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return nil, ErrClosed
	}

	r, err := e.recoverLocked(ctx)
	if err != nil {
		return nil, err
	}
	e.recovery = r
	return r, nil
}

func (e *Engine) recoverLocked(ctx context.Context) (*RecoveryReport, error) {
	start := time.Now()
	r := &RecoveryReport{VirtualCommit: VCNone}
	path := e.vcPath()

	vc, err := vcommit.Load(path)
	switch {
	case err == nil:
		r.FlushID = vc.ID.String()
		logger.InfoCtx(ctx, "Recovery: found marked virtual commit",
			logger.KeyFlushID, r.FlushID,
			logger.KeySeq, vc.LastSeq,
			logger.KeyKeys, len(vc.Ops))

		e.fsm.Restore(vcommit.StateMarked)
		res, err := e.mergeLocked(ctx, vc)
		if err != nil {
			return nil, err
		}
		if res.Applied {
			r.VirtualCommit = VCApplied
			r.AppliedKeys = len(vc.Ops)
		} else {
			r.VirtualCommit = VCAlreadyApplied
		}
		if e.metrics != nil && res.Applied {
			e.metrics.ObserveFlush(ReasonRecover, 0, len(vc.Ops), res.BytesWritten, time.Since(start), nil)
		}

	case os.IsNotExist(err):
		e.fsm.Restore(vcommit.StateIdle)

	case errors.Is(err, vcommit.ErrCorruptVirtualCommit):
		logger.WarnCtx(ctx, "Recovery: discarding unmarked virtual commit", logger.KeyPath, path, logger.Err(err))
		if err := vcommit.Remove(path); err != nil {
			return nil, ioErr("discard virtual commit", err)
		}
		e.pending.Store(nil)
		e.fsm.Restore(vcommit.StateIdle)
		r.VirtualCommit = VCDiscarded

	default:
		return nil, ioErr("load virtual commit", err)
	}

	for _, c := range e.journal.Corrupt() {
		logger.WarnCtx(ctx, "Recovery: deleting corrupt era",
			logger.KeySeq, c.Sequence,
			logger.KeyPath, c.Path,
			logger.Err(c.Err))
	}
	r.CorruptEras, err = e.journal.RemoveCorrupt()
	if err != nil {
		return nil, ioErr("remove corrupt eras", err)
	}

	meta := e.store.Meta()
	r.DroppedEras, err = e.journal.DropThrough(meta.LastSeq)
	if err != nil {
		return nil, ioErr("drop applied eras", err)
	}
	e.journal.AdvanceSequence(meta.LastSeq)

	r.RetainedEras = e.journal.Len()
	r.NextSequence = e.journal.LastSequence() + 1
	r.Version = meta.Version
	r.Duration = time.Since(start)

	if r.Changed() {
		e.cacheMu.Lock()
		e.cache.Clear()
		e.cacheMu.Unlock()
		logger.InfoCtx(ctx, "Recovery: completed",
			"virtual_commit", string(r.VirtualCommit),
			"corrupt_eras", r.CorruptEras,
			"dropped_eras", r.DroppedEras,
			logger.KeyEras, r.RetainedEras,
			logger.KeyVersion, r.Version,
			logger.KeyDuration, float64(r.Duration.Microseconds())/1000)
	} else {
		logger.DebugCtx(ctx, "Recovery: nothing to do", logger.KeyEras, r.RetainedEras)
	}

	if e.metrics != nil {
		e.metrics.ObserveRecovery(r)
	}
	return r, nil
}

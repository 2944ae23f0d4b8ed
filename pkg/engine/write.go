package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/batch"
	"github.com/marmos91/eradb/pkg/journal"
)

// Commit durably records b as a new era. When the journal is full the era
// limit policy applies: PolicyFlush flushes first, PolicyReject fails with
// ErrEraLimitExceeded. The batch is visible to readers once Commit returns.
func (e *Engine) Commit(ctx context.Context, b *batch.Batch) (err error) {
	if b == nil || b.Len() == 0 {
		return ErrEmptyBatch
	}
	if err := b.Validate(); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCommit, attribute.Int(telemetry.AttrOps, b.Len()))
	defer func() {
		telemetry.End(span, err)
		if e.metrics != nil {
			e.metrics.ObserveCommit(b.Len(), int64(b.EncodedSize()), time.Since(start), err)
		}
	}()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.resumeLocked(ctx); err != nil {
		return err
	}

	if e.journal.Full() {
		if e.opts.EraLimitPolicy == PolicyReject {
			return fmt.Errorf("%w: %d eras pending", ErrEraLimitExceeded, e.journal.Len())
		}
		logger.DebugCtx(ctx, "Commit: journal full, flushing", logger.KeyEras, e.journal.Len())
		if err := e.flushLocked(ctx, ReasonEraLimit); err != nil {
			return fmt.Errorf("implicit flush: %w", err)
		}
	}

	keys := b.Keys()
	e.beginWrite(keys)
	era, err := e.journal.Push(b)
	e.endWrite(keys)
	if err != nil {
		if errors.Is(err, journal.ErrEraLimitExceeded) {
			return err
		}
		return ioErr("write era", err)
	}

	span.SetAttributes(telemetry.Seq(era.Sequence))
	logger.DebugCtx(ctx, "Commit: era written",
		logger.KeySeq, era.Sequence,
		logger.KeyKeys, b.Len(),
		logger.KeyBytes, era.Size())
	e.recordProperties()
	return nil
}

// Put commits a single put.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	return e.Commit(ctx, batch.New().Put(key, value))
}

// Delete commits a single delete.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	return e.Commit(ctx, batch.New().Delete(key))
}

// Rollback discards the newest pending era. It fails with
// ErrNothingToRollback when every commit has been flushed.
func (e *Engine) Rollback(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRollback)
	defer func() {
		telemetry.End(span, err)
		if e.metrics != nil {
			e.metrics.ObserveRollback(err)
		}
	}()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.resumeLocked(ctx); err != nil {
		return err
	}

	var keys [][]byte
	if eras := e.journal.Snapshot(); len(eras) > 0 {
		keys = eras[len(eras)-1].Keys()
	}
	e.beginWrite(keys)
	era, err := e.journal.Pop()
	e.endWrite(keys)
	if err != nil {
		if errors.Is(err, journal.ErrNothingToRollback) {
			return err
		}
		return ioErr("remove era", err)
	}

	span.SetAttributes(telemetry.Seq(era.Sequence))
	logger.InfoCtx(ctx, "Rollback: era discarded",
		logger.KeySeq, era.Sequence,
		logger.KeyKeys, len(era.Ops))
	e.recordProperties()
	return nil
}

// beginWrite opens the write window for keys. They are dropped from the
// cache before the journal changes, and until endWrite readers neither read
// nor fill the cache. Sets buffered before the window are applied first so
// none can land after the drop.
func (e *Engine) beginWrite(keys [][]byte) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.writing = true
	e.cache.Wait()
	for _, k := range keys {
		e.cache.Del(k)
	}
	e.cache.Wait()
}

// endWrite closes the window opened by beginWrite.
func (e *Engine) endWrite(keys [][]byte) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	for _, k := range keys {
		e.cache.Del(k)
	}
	e.cache.Wait()
	e.writing = false
}

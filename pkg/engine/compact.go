package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/store"
)

// Compact reclaims the space the mapped store holds for overwritten and
// deleted keys. Pending eras are left in the journal. Flushes compact on
// their own when the store would otherwise grow; Compact is for reclaiming
// space without waiting for that.
func (e *Engine) Compact(ctx context.Context) (reclaimed uint64, err error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCompact)
	defer func() {
		span.SetAttributes(attribute.Int64(telemetry.AttrBytes, int64(reclaimed)))
		telemetry.End(span, err)
	}()

	reclaimed, err = e.store.Compact()
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, ioErr("compact store", err)
	}
	if reclaimed > 0 {
		e.observeCompaction(ctx, reclaimed)
		e.recordProperties()
	}
	return reclaimed, nil
}

func (e *Engine) observeCompaction(ctx context.Context, reclaimed uint64) {
	meta := e.store.Meta()
	logger.InfoCtx(ctx, "Store compacted",
		logger.KeyBytes, reclaimed,
		logger.KeyUsed, meta.Used,
		logger.KeyCapacity, meta.Capacity)
	if e.metrics != nil {
		e.metrics.ObserveCompaction(reclaimed)
	}
}

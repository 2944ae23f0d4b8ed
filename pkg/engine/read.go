package engine

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/batch"
	"github.com/marmos91/eradb/pkg/store"
)

// Get returns the value stored for key. found is false when the key has
// never been written or its newest write is a delete. The returned slice is
// owned by the caller.
func (e *Engine) Get(ctx context.Context, key []byte) (_ []byte, _ bool, err error) {
	if e.closed.Load() {
		return nil, false, ErrClosed
	}
	if len(key) == 0 {
		return nil, false, batch.ErrEmptyKey
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGet, attribute.Int(telemetry.AttrKeyLen, len(key)))
	source := SourceMiss
	found := false
	defer func() {
		span.SetAttributes(telemetry.Source(source), telemetry.Found(found))
		telemetry.End(span, err)
		if e.metrics != nil {
			e.metrics.ObserveGet(source, time.Since(start))
		}
	}()

	// the cache is only trusted outside a write window; inside one it may
	// still hold the value the write is replacing
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()

	if !e.writing {
		if v, ok := e.cache.Get(key); ok {
			source, found = SourceCache, true
			return bytes.Clone(v), true, nil
		}
	}

	val, found, source, err := e.lookup(key)
	if err != nil {
		logger.DebugCtx(ctx, "Get failed", logger.KeySource, source, logger.Err(err))
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if !e.writing {
		e.cache.Set(key, val)
	}
	return bytes.Clone(val), true, nil
}

// lookup resolves key below the cache: journal, then the virtual commit
// being merged, then the store. The order matters: a flush publishes its
// virtual commit before dropping eras and retires it only after the store
// reflects it.
func (e *Engine) lookup(key []byte) ([]byte, bool, string, error) {
	if op, ok := e.journal.Get(key); ok {
		if op.IsDelete() {
			return nil, false, SourceJournal, nil
		}
		return bytes.Clone(op.Value), true, SourceJournal, nil
	}

	if vc := e.pending.Load(); vc != nil {
		if op, ok := vc.Lookup(key); ok {
			if op.IsDelete() {
				return nil, false, SourceVCommit, nil
			}
			return bytes.Clone(op.Value), true, SourceVCommit, nil
		}
	}

	val, ok, err := e.store.Get(key)
	if err != nil {
		return nil, false, SourceStore, storeReadErr(err)
	}
	if !ok {
		return nil, false, SourceMiss, nil
	}
	return val, true, SourceStore, nil
}

func storeReadErr(err error) error {
	if errors.Is(err, store.ErrClosed) {
		return ErrClosed
	}
	return ioErr("read store", err)
}

// Scan calls fn for every live key with the given prefix in key order, until
// fn returns false. It sees a consistent state: writes that complete after
// Scan started may or may not be visible, deleted keys never are. The slices
// passed to fn are only valid until fn returns.
func (e *Engine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) (err error) {
	if e.closed.Load() {
		return ErrClosed
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanScan, attribute.Int(telemetry.AttrKeyLen, len(prefix)))
	defer func() { telemetry.End(span, err) }()

	// same capture order as lookup
	eras := e.journal.Snapshot()
	vc := e.pending.Load()

	overlay := make(map[string]batch.Op)
	p := string(prefix)
	if vc != nil {
		for _, op := range vc.Ops {
			if strings.HasPrefix(string(op.Key), p) {
				overlay[string(op.Key)] = op
			}
		}
	}
	for _, era := range eras {
		for _, op := range era.Ops {
			if strings.HasPrefix(string(op.Key), p) {
				overlay[string(op.Key)] = op
			}
		}
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	i := 0
	stopped := false
	emit := func(key string) bool {
		op := overlay[key]
		if op.IsDelete() {
			return true
		}
		return fn(op.Key, op.Value)
	}

	err = e.store.View(func(v *store.View) error {
		return v.Ascend(prefix, func(key, value []byte) bool {
			if ctx.Err() != nil {
				stopped = true
				return false
			}
			sk := string(key)
			for i < len(keys) && keys[i] < sk {
				if !emit(keys[i]) {
					stopped = true
					return false
				}
				i++
			}
			if i < len(keys) && keys[i] == sk {
				i++
				if !emit(sk) {
					stopped = true
					return false
				}
				return true
			}
			if !fn(key, value) {
				stopped = true
				return false
			}
			return true
		})
	})
	if err != nil {
		return storeReadErr(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if stopped {
		return nil
	}

	for ; i < len(keys); i++ {
		if !emit(keys[i]) {
			return nil
		}
	}
	return nil
}

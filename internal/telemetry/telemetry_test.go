package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { SetTracerProvider(nil) })
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "eradb", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.False(t, IsEnabled())

	ctx, span := StartSpan(context.Background(), SpanFlush)
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, TraceID(ctx))
}

func TestStartSpan_Recorded(t *testing.T) {
	rec := recorder(t)
	assert.True(t, IsEnabled())

	ctx, span := StartSpan(context.Background(), SpanCommit, Seq(4))
	AddEvent(ctx, "era.pushed", Eras(2))
	SetAttributes(ctx, Found(true))
	assert.NotEmpty(t, TraceID(ctx))
	End(span, nil)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, SpanCommit, s.Name())
	assert.Contains(t, s.Attributes(), attribute.Int64(AttrSeq, 4))
	assert.Contains(t, s.Attributes(), attribute.Bool(AttrFound, true))
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "era.pushed", s.Events()[0].Name)
	assert.Equal(t, codes.Unset, s.Status().Code)
}

func TestEnd_RecordsError(t *testing.T) {
	rec := recorder(t)

	_, span := StartSpan(context.Background(), SpanFlush)
	End(span, errors.New("disk full"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "disk full", spans[0].Status().Description)
}

func TestRecordError_Nil(t *testing.T) {
	rec := recorder(t)

	ctx, span := StartSpan(context.Background(), SpanGet)
	RecordError(ctx, nil)
	span.End()

	assert.Equal(t, codes.Unset, rec.Ended()[0].Status().Code)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

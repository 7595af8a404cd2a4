package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every store span is created with.
const TracerName = "github.com/gxo-labs/rxstore"

// Span names of the sync pipeline.
const (
	SpanFetch = "rxstore.fetch"
	SpanSave  = "rxstore.save"
)

// Span attribute keys.
const (
	AttrStore    = attribute.Key("rxstore.store")
	AttrKey      = attribute.Key("rxstore.key")
	AttrAttempts = attribute.Key("rxstore.attempts")
	AttrOutcome  = attribute.Key("rxstore.outcome")
)

// StartSpan starts an internal span for one pipeline call.
func StartSpan(ctx context.Context, tracer oteltrace.Tracer, name, store, key string) (context.Context, oteltrace.Span) {
	attrs := []attribute.KeyValue{AttrStore.String(store)}
	if key != "" {
		attrs = append(attrs, AttrKey.String(key))
	}
	return tracer.Start(ctx, name,
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(attrs...),
	)
}

// RecordErrorWithContext records err on span and marks the span failed.
// It does nothing for a nil error or a span that is not recording.
func RecordErrorWithContext(span oteltrace.Span, err error) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}

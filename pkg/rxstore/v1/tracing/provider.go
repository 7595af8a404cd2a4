package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TracerProvider supplies tracers for sync pipeline spans. It lets callers
// plug rxstore into an existing OpenTelemetry setup.
type TracerProvider interface {
	// GetTracer returns a Tracer instance with the specified name and options.
	GetTracer(name string, opts ...trace.TracerOption) trace.Tracer

	// Shutdown flushes buffered spans. It is a no-op for NoOp providers.
	Shutdown(ctx context.Context) error
}

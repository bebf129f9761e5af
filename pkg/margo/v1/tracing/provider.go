package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TracerProvider defines the interface for accessing the engine's tracer
// provider. This allows consumers of the margo library to integrate margo's
// tracing with their existing OpenTelemetry setup or provide custom
// implementations.
type TracerProvider interface {
	// GetTracer returns a Tracer instance with the specified name and options.
	// This aligns with OTel's TracerProvider interface concept.
	GetTracer(name string, opts ...trace.TracerOption) trace.Tracer

	// Shutdown gracefully shuts down the tracer provider, flushing any
	// buffered spans. The context should carry a deadline for the shutdown.
	// Implementations where shutdown does not apply (e.g. a NoOp provider)
	// should return nil.
	Shutdown(ctx context.Context) error
}

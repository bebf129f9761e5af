package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName is the default name used when acquiring a tracer instance.
const tracerName = "margo"

// GetTracer returns a named tracer instance from the globally configured
// OpenTelemetry provider. If no global provider is configured it returns a
// NoOp tracer. Injecting the TracerProvider into components is preferred
// over relying on the global provider.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// QueryAttributes builds the standard span attributes for a query span.
func QueryAttributes(kind string, targets []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("margo.query.kind", kind),
		attribute.StringSlice("margo.query.targets", targets),
	}
}

// SolveAttributes builds the standard span attributes for a solve span.
func SolveAttributes(modelName string, scenarios []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("margo.model", modelName),
		attribute.StringSlice("margo.solve.scenarios", scenarios),
	}
}

// RecordError marks the span as failed and records err on it. Safe to call
// with a nil or non-recording span.
func RecordError(span oteltrace.Span, err error) {
	if span == nil || !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndOK sets an OK status and ends the span.
func EndOK(span oteltrace.Span) {
	if span == nil {
		return
	}
	if span.IsRecording() {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/trinityvector/trinitymemory"

// Tracer returns the engine's named tracer. In the absence of an
// explicitly installed SDK/exporter the global no-op provider is used,
// so spans are free to create even when no collector is configured;
// callers wire a real TracerProvider via otel.SetTracerProvider before
// Tracer is first called to get exported spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Meter returns the engine's named meter, used for the consolidation
// pass's entries-moved counter.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// StartSpan starts a span named name under ctx using the engine's
// tracer, returning the derived context and the span.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

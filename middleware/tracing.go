package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// scopeName is the instrumentation scope for pipeline spans and metrics.
const scopeName = "github.com/shivramiyer22/rideshare-sub001"

// Tracing returns middleware that wraps each task call in a
// "pricing.task.execute" span from the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(scopeName))
}

// TracingWithTracer is Tracing with an explicit tracer.
//
// Span attributes: pricing.task, pricing.run_id, pricing.phase,
// pricing.timeout_ms and, once the call returns, pricing.outcome.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "pricing.task.execute",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("pricing.task", inv.Task.String()),
				attribute.String("pricing.run_id", inv.RunID.String()),
				attribute.String("pricing.phase", inv.Phase),
				attribute.Int64("pricing.timeout_ms", inv.Timeout.Milliseconds()),
			),
		)
		defer span.End()

		err := next(ctx)
		span.SetAttributes(attribute.String("pricing.outcome", outcome(ctx, err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Metrics returns middleware recording per-task metrics on the global
// MeterProvider; without one the instruments are noops.
//
// Instruments, each with task, phase and status ("ok", "error", "timeout"):
//   - pricing.task.duration (Float64Histogram, seconds)
//   - pricing.task.executions (Int64Counter)
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(scopeName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors still return usable noop instruments.
	duration, _ := meter.Float64Histogram("pricing.task.duration",
		metric.WithDescription("Duration of task execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter("pricing.task.executions",
		metric.WithDescription("Total number of task executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(
			attribute.String("task", inv.Task.String()),
			attribute.String("phase", inv.Phase),
			attribute.String("status", outcome(ctx, err)),
		)
		// The invocation context may already be cancelled.
		rctx := context.WithoutCancel(ctx)
		duration.Record(rctx, time.Since(start).Seconds(), attrs)
		executions.Add(rctx, 1, attrs)
		return err
	}
}

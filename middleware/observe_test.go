package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/shivramiyer22/rideshare-sub001/middleware"
)

// handlers covering each outcome label.
var outcomeCases = []struct {
	name    string
	timeout time.Duration
	handler mw.Handler
	status  string
}{
	{"ok", 0, func(context.Context) error { return nil }, "ok"},
	{"error", 0, func(context.Context) error { return errors.New("model unavailable") }, "error"},
	{"timeout", time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, "timeout"},
}

func runCase(ctx context.Context, m mw.Middleware, timeout time.Duration, h mw.Handler) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m(ctx, newTestInvocation(), h)
}

func TestTracing_SpanPerOutcome(t *testing.T) {
	for _, tc := range outcomeCases {
		t.Run(tc.name, func(t *testing.T) {
			sr, tracer := setupTestTracer()
			err := runCase(context.Background(), mw.TracingWithTracer(tracer), tc.timeout, tc.handler)

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			span := spans[0]
			if span.Name() != "pricing.task.execute" {
				t.Errorf("span name = %q", span.Name())
			}

			attrs := spanAttrs(span)
			want := map[string]string{
				"pricing.task":       "forecasting",
				"pricing.phase":      "signals",
				"pricing.timeout_ms": "5000",
				"pricing.outcome":    tc.status,
			}
			for k, v := range want {
				if attrs[k] != v {
					t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
				}
			}
			if attrs["pricing.run_id"] == "" {
				t.Error("missing pricing.run_id")
			}

			wantCode := codes.Ok
			if err != nil {
				wantCode = codes.Error
				if span.Status().Description != err.Error() {
					t.Errorf("status description = %q, want %q", span.Status().Description, err.Error())
				}
				if len(span.Events()) == 0 || span.Events()[0].Name != "exception" {
					t.Error("expected exception event")
				}
			}
			if span.Status().Code != wantCode {
				t.Errorf("status code = %v, want %v", span.Status().Code, wantCode)
			}
		})
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	sr, tracer := setupTestTracer()

	var inner trace.SpanContext
	_ = mw.TracingWithTracer(tracer)(context.Background(), newTestInvocation(), func(ctx context.Context) error {
		inner = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	if !inner.IsValid() {
		t.Fatal("handler did not receive a span context")
	}
	if inner.SpanID() != sr.Ended()[0].SpanContext().SpanID() {
		t.Error("handler span is not the middleware span")
	}
}

func TestMetrics_StatusPerOutcome(t *testing.T) {
	for _, tc := range outcomeCases {
		t.Run(tc.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			_ = runCase(context.Background(), mw.MetricsWithMeter(mp.Meter("test")), tc.timeout, tc.handler)

			for _, name := range []string{"pricing.task.duration", "pricing.task.executions"} {
				attrs := dataPointAttrs(t, reader, name)
				if attrs["task"] != "forecasting" || attrs["phase"] != "signals" || attrs["status"] != tc.status {
					t.Errorf("%s attributes = %v, want task=forecasting phase=signals status=%s", name, attrs, tc.status)
				}
			}
		})
	}
}

func TestMetrics_ReturnsHandlerError(t *testing.T) {
	_, mp := setupTestMeter()
	want := errors.New("boom")
	err := mw.MetricsWithMeter(mp.Meter("test"))(context.Background(), newTestInvocation(), func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestGlobalProviders_NoopSafe(t *testing.T) {
	for name, m := range map[string]mw.Middleware{"tracing": mw.Tracing(), "metrics": mw.Metrics()} {
		called := false
		err := m(context.Background(), newTestInvocation(), func(context.Context) error {
			called = true
			return nil
		})
		if err != nil || !called {
			t.Errorf("%s: err = %v, called = %v", name, err, called)
		}
	}
}

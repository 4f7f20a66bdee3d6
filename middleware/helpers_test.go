package middleware_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

func newTestInvocation() *task.Invocation {
	return &task.Invocation{
		Task:    task.Forecasting,
		Input:   task.ForecastInput{HorizonDays: []int{30, 60, 90}},
		Timeout: 5 * time.Second,
		RunID:   id.NewRunID(),
		Phase:   "signals",
	}
}

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// dataPointAttrs collects the string attributes of the first data point of
// the named instrument.
func dataPointAttrs(t *testing.T, reader *sdkmetric.ManualReader, name string) map[string]string {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var set attribute.Set
			switch data := m.Data.(type) {
			case metricdata.Histogram[float64]:
				if len(data.DataPoints) == 0 {
					t.Fatalf("%s: no data points", name)
				}
				set = data.DataPoints[0].Attributes
			case metricdata.Sum[int64]:
				if len(data.DataPoints) == 0 {
					t.Fatalf("%s: no data points", name)
				}
				set = data.DataPoints[0].Attributes
			default:
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			out := make(map[string]string)
			for _, kv := range set.ToSlice() {
				out[string(kv.Key)] = kv.Value.Emit()
			}
			return out
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	out := make(map[string]string)
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

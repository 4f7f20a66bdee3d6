package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/shivramiyer22/rideshare-sub001/ext"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/observability"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func newTestRun() *pipeline.Run {
	return pipeline.NewRun(pipeline.SourceManual, "manual")
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_RunTerminalStatuses(t *testing.T) {
	e := newTestExtension()
	ctx := context.Background()
	r := newTestRun()

	if err := e.OnRunStarted(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnRunSucceeded(ctx, r, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnRunPartial(ctx, r, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnRunFailed(ctx, r, errors.New("all phases failed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, c := range map[string]gu.Counter{
		"RunStarted":   e.RunStarted,
		"RunSucceeded": e.RunSucceeded,
		"RunPartial":   e.RunPartial,
		"RunFailed":    e.RunFailed,
	} {
		if c.Value() != 1 {
			t.Errorf("%s: want 1, got %v", name, c.Value())
		}
	}
}

func TestMetricsExtension_TaskTimeoutCountedSeparately(t *testing.T) {
	e := newTestExtension()
	ctx := context.Background()
	r := newTestRun()

	_ = e.OnTaskFailed(ctx, r, phase.Signals, task.Outcome{Task: task.Forecasting, Status: task.StatusTimeout})
	_ = e.OnTaskFailed(ctx, r, phase.Signals, task.Outcome{Task: task.Analysis, Status: task.StatusError})
	_ = e.OnTaskFailed(ctx, r, phase.WhatIf, task.Outcome{Task: task.WhatIf, Status: task.StatusError})

	if e.TaskTimedOut.Value() != 1 {
		t.Errorf("TaskTimedOut: want 1, got %v", e.TaskTimedOut.Value())
	}
	if e.TaskFailed.Value() != 2 {
		t.Errorf("TaskFailed: want 2, got %v", e.TaskFailed.Value())
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e := newTestExtension()
	logger := slog.Default()

	reg := ext.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	r := newTestRun()
	ok := task.Outcome{Task: task.Forecasting, Status: task.StatusOK}
	failed := task.Outcome{Task: task.Analysis, Status: task.StatusError, Error: "boom"}

	reg.EmitRunStarted(ctx, r)
	reg.EmitTaskCompleted(ctx, r, phase.Signals, ok)
	reg.EmitTaskFailed(ctx, r, phase.Signals, failed)
	reg.EmitRunSucceeded(ctx, r, time.Second)
	reg.EmitRunPartial(ctx, r, time.Second)
	reg.EmitRunFailed(ctx, r, errors.New("fail"))
	reg.EmitTriggerRejected(ctx, pipeline.SourceChangeStream, "change_stream", r.ID)
	reg.EmitScheduleFired(ctx, "@every 1h", id.NewRunID())
	reg.EmitChangeDetected(ctx, "rides")

	checks := []struct {
		name  string
		value float64
	}{
		{"RunStarted", e.RunStarted.Value()},
		{"TaskCompleted", e.TaskCompleted.Value()},
		{"TaskFailed", e.TaskFailed.Value()},
		{"RunSucceeded", e.RunSucceeded.Value()},
		{"RunPartial", e.RunPartial.Value()},
		{"RunFailed", e.RunFailed.Value()},
		{"TriggerRejected", e.TriggerRejected.Value()},
		{"ScheduleFired", e.ScheduleFired.Value()},
		{"ChangeDetected", e.ChangeDetected.Value()},
	}

	for _, c := range checks {
		if c.value != 1 {
			t.Errorf("%s: want 1, got %v", c.name, c.value)
		}
	}
}

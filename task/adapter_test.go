package task_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

func newAdapter(t *testing.T, name task.Name, fn task.Func, opts ...task.AdapterOption) *task.Adapter {
	t.Helper()
	reg := task.NewRegistry()
	reg.Register(name, fn)
	return task.NewAdapter(reg, opts...)
}

func TestExecuteOK(t *testing.T) {
	want := &task.ForecastResult{Forecasts: []task.Forecast{{PricingModel: "STANDARD", HorizonDays: 30}}}
	a := newAdapter(t, task.Forecasting, func(_ context.Context, _ task.Input) (task.Payload, error) {
		return want, nil
	})

	out := a.Execute(context.Background(), task.Invocation{
		Task:    task.Forecasting,
		Input:   task.ForecastInput{HorizonDays: []int{30}},
		Timeout: time.Second,
	})

	if out.Status != task.StatusOK {
		t.Fatalf("status = %s, want OK (error: %s)", out.Status, out.Error)
	}
	if out.Output != want {
		t.Errorf("output = %v, want %v", out.Output, want)
	}
	if out.Error != "" {
		t.Errorf("unexpected error message %q", out.Error)
	}
	if out.CompletedAt.Before(out.StartedAt) {
		t.Error("completed_at before started_at")
	}
}

func TestExecuteError(t *testing.T) {
	boom := errors.New("model unavailable")
	a := newAdapter(t, task.Analysis, func(_ context.Context, _ task.Input) (task.Payload, error) {
		return nil, boom
	})

	out := a.Execute(context.Background(), task.Invocation{Task: task.Analysis, Input: task.RuleInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR", out.Status)
	}
	if !strings.Contains(out.Error, "model unavailable") {
		t.Errorf("error message %q does not carry the cause", out.Error)
	}
	if out.Output != nil {
		t.Error("expected no output on error")
	}
}

func TestExecuteTimeoutDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var cancelled atomic.Bool
	a := newAdapter(t, task.Analysis, func(ctx context.Context, _ task.Input) (task.Payload, error) {
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-release:
		}
		<-release
		return &task.RuleSetResult{}, nil
	})

	start := time.Now()
	out := a.Execute(context.Background(), task.Invocation{Task: task.Analysis, Input: task.RuleInput{}, Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	if out.Status != task.StatusTimeout {
		t.Fatalf("status = %s, want TIMEOUT", out.Status)
	}
	if elapsed > time.Second {
		t.Errorf("Execute waited %s past its timeout", elapsed)
	}
	if !strings.Contains(out.Error, pricing.ErrTaskTimeout.Error()) {
		t.Errorf("error message %q does not mention timeout", out.Error)
	}

	deadline := time.Now().Add(time.Second)
	for !cancelled.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !cancelled.Load() {
		t.Error("abandoned task context was not cancelled")
	}
}

func TestExecutePanicRecovered(t *testing.T) {
	a := newAdapter(t, task.WhatIf, func(_ context.Context, _ task.Input) (task.Payload, error) {
		panic("simulation exploded")
	})

	out := a.Execute(context.Background(), task.Invocation{Task: task.WhatIf, Input: task.WhatIfInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR", out.Status)
	}
	if !strings.Contains(out.Error, "simulation exploded") {
		t.Errorf("error message %q does not carry panic value", out.Error)
	}
}

func TestExecuteUnknownTask(t *testing.T) {
	a := task.NewAdapter(task.NewRegistry())

	out := a.Execute(context.Background(), task.Invocation{Task: "pricing_oracle", Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR", out.Status)
	}
	if !strings.Contains(out.Error, pricing.ErrUnknownTask.Error()) {
		t.Errorf("error message %q does not mention unknown task", out.Error)
	}
}

func TestExecuteWrongPayloadKind(t *testing.T) {
	a := newAdapter(t, task.Recommendation, func(_ context.Context, _ task.Input) (task.Payload, error) {
		return &task.WhatIfResult{}, nil
	})

	out := a.Execute(context.Background(), task.Invocation{Task: task.Recommendation, Input: task.RecommendationInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR", out.Status)
	}
}

func TestExecuteNilPayload(t *testing.T) {
	reg := task.NewRegistry()
	task.RegisterTyped(reg, task.Forecasting, func(_ context.Context, _ task.ForecastInput) (*task.ForecastResult, error) {
		return nil, nil
	})
	a := task.NewAdapter(reg)

	out := a.Execute(context.Background(), task.Invocation{Task: task.Forecasting, Input: task.ForecastInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR for typed nil payload", out.Status)
	}
}

func TestExecuteParentCancelled(t *testing.T) {
	a := newAdapter(t, task.Forecasting, func(ctx context.Context, _ task.Input) (task.Payload, error) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := a.Execute(ctx, task.Invocation{Task: task.Forecasting, Input: task.ForecastInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR for cancelled caller", out.Status)
	}
}

func TestRegisterTypedRejectsWrongInput(t *testing.T) {
	reg := task.NewRegistry()
	task.RegisterTyped(reg, task.WhatIf, func(_ context.Context, _ task.WhatIfInput) (*task.WhatIfResult, error) {
		return &task.WhatIfResult{}, nil
	})
	a := task.NewAdapter(reg)

	out := a.Execute(context.Background(), task.Invocation{Task: task.WhatIf, Input: task.RuleInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR for mismatched input", out.Status)
	}
	if !strings.Contains(out.Error, "unexpected input type") {
		t.Errorf("error message %q", out.Error)
	}
}

func TestInterceptorRunsInsideTimeout(t *testing.T) {
	var seen task.Invocation
	var hasDeadline bool

	reg := task.NewRegistry()
	reg.Register(task.Forecasting, func(_ context.Context, _ task.Input) (task.Payload, error) {
		return &task.ForecastResult{}, nil
	})
	a := task.NewAdapter(reg, task.WithInterceptor(func(ctx context.Context, inv *task.Invocation, next func(context.Context) error) error {
		seen = *inv
		_, hasDeadline = ctx.Deadline()
		return next(ctx)
	}))

	out := a.Execute(context.Background(), task.Invocation{
		Task:    task.Forecasting,
		Input:   task.ForecastInput{},
		Timeout: time.Second,
		Phase:   "signals",
	})
	if !out.OK() {
		t.Fatalf("status = %s", out.Status)
	}
	if seen.Task != task.Forecasting || seen.Phase != "signals" {
		t.Errorf("interceptor saw %+v", seen)
	}
	if !hasDeadline {
		t.Error("interceptor context has no deadline")
	}
}

func TestRegistryNames(t *testing.T) {
	reg := task.NewRegistry()
	reg.Register(task.WhatIf, nil)
	reg.Register(task.Analysis, nil)

	names := reg.Names()
	if len(names) != 2 || names[0] != task.Analysis || names[1] != task.WhatIf {
		t.Errorf("Names() = %v", names)
	}
}

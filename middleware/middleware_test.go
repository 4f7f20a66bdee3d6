package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	mw "github.com/shivramiyer22/rideshare-sub001/middleware"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) mw.Middleware {
		return func(ctx context.Context, _ *task.Invocation, next mw.Handler) error {
			order = append(order, name+">")
			err := next(ctx)
			order = append(order, "<"+name)
			return err
		}
	}

	err := mw.Chain(tag("a"), tag("b"))(context.Background(), newTestInvocation(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a>", "b>", "task", "<b", "<a"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestChain_EmptyAndErrors(t *testing.T) {
	want := errors.New("handler error")
	if err := mw.Chain()(context.Background(), newTestInvocation(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("empty chain err = %v, want %v", err, want)
	}
}

func TestRecover(t *testing.T) {
	m := mw.Recover(slog.Default())
	inv := newTestInvocation()
	inv.Task = task.WhatIf

	err := m(context.Background(), inv, func(context.Context) error { panic("test panic") })
	if err == nil || err.Error() != "panic in task whatif: test panic" {
		t.Fatalf("err = %v", err)
	}

	if err := m(context.Background(), inv, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("pass-through err = %v", err)
	}
}

func TestLogging_LevelPerOutcome(t *testing.T) {
	for _, tc := range []struct {
		name    string
		timeout time.Duration
		handler mw.Handler
		level   string
		message string
	}{
		{"ok", 0, func(context.Context) error { return nil }, "DEBUG", "task completed"},
		{"error", 0, func(context.Context) error { return errors.New("fail") }, "ERROR", "task failed"},
		{"timeout", time.Millisecond, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, "WARN", "task timed out"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			_ = runCase(context.Background(), mw.Logging(logger), tc.timeout, tc.handler)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			last := lines[len(lines)-1]
			if !strings.Contains(last, "level="+tc.level) || !strings.Contains(last, tc.message) {
				t.Errorf("last log line = %q, want level %s and %q", last, tc.level, tc.message)
			}
			if !strings.Contains(last, "task=forecasting") || !strings.Contains(last, "phase=signals") {
				t.Errorf("log line missing task attributes: %q", last)
			}
		})
	}
}

func TestDefault_WithAdapter(t *testing.T) {
	reg := task.NewRegistry()
	reg.Register(task.Forecasting, func(context.Context, task.Input) (task.Payload, error) {
		panic("forecaster crashed")
	})
	reg.Register(task.Analysis, func(context.Context, task.Input) (task.Payload, error) {
		return &task.RuleSetResult{}, nil
	})

	adapter := task.NewAdapter(reg, task.WithInterceptor(mw.Default(slog.Default())))

	out := adapter.Execute(context.Background(), task.Invocation{Task: task.Forecasting, Input: task.ForecastInput{}, Timeout: time.Second})
	if out.Status != task.StatusError {
		t.Fatalf("status = %s, want ERROR", out.Status)
	}
	if !strings.Contains(out.Error, "forecaster crashed") {
		t.Errorf("error message %q", out.Error)
	}

	out = adapter.Execute(context.Background(), task.Invocation{Task: task.Analysis, Input: task.RuleInput{}, Timeout: time.Second})
	if !out.OK() {
		t.Fatalf("status = %s, want OK", out.Status)
	}
}

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
)

// DefaultTimeout is applied to invocations that carry no timeout.
const DefaultTimeout = 60 * time.Second

// Invocation describes one task call.
type Invocation struct {
	Task    Name
	Input   Input
	Timeout time.Duration

	// RunID and Phase identify the run and phase the call belongs to.
	// They are informational and used by interceptors for logging,
	// tracing and metrics.
	RunID id.RunID
	Phase string
}

// Interceptor wraps a task call with cross-cutting logic. It must call
// next to continue the chain unless intentionally short-circuiting.
// The middleware package provides the standard interceptors.
type Interceptor func(ctx context.Context, inv *Invocation, next func(ctx context.Context) error) error

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithInterceptor sets the interceptor applied inside the timeout boundary
// of every invocation.
func WithInterceptor(ic Interceptor) AdapterOption {
	return func(a *Adapter) { a.intercept = ic }
}

// WithAdapterLogger sets the logger used for abandoned invocations.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// Adapter invokes registered tasks under a bounded timeout and normalizes
// every result into an [Outcome].
type Adapter struct {
	registry  *Registry
	intercept Interceptor
	logger    *slog.Logger
}

// NewAdapter creates an Adapter over the given registry.
func NewAdapter(registry *Registry, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the registry the adapter resolves tasks from.
func (a *Adapter) Registry() *Registry { return a.registry }

type callResult struct {
	out Payload
	err error
}

// Execute runs the task named by inv and waits at most inv.Timeout for it.
//
// The call runs in its own goroutine. If it returns in time its result is
// wrapped as StatusOK or StatusError. Otherwise Execute returns
// StatusTimeout immediately, cancels the call's context and abandons the
// goroutine; a late result is discarded. Panics become StatusError.
// Cancellation of ctx by the caller yields StatusError.
func (a *Adapter) Execute(ctx context.Context, inv Invocation) Outcome {
	started := time.Now().UTC()
	outcome := Outcome{Task: inv.Task, StartedAt: started}

	finish := func(status Status, out Payload, err error) Outcome {
		outcome.Status = status
		outcome.Output = out
		if err != nil {
			outcome.Error = err.Error()
		}
		outcome.CompletedAt = time.Now().UTC()
		outcome.Duration = outcome.CompletedAt.Sub(started)
		return outcome
	}

	fn, ok := a.registry.Get(inv.Task)
	if !ok || fn == nil {
		return finish(StatusError, nil, fmt.Errorf("%w: %s", pricing.ErrUnknownTask, inv.Task))
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned call can always deliver and exit.
	done := make(chan callResult, 1)

	go func() {
		var res callResult
		defer func() {
			if r := recover(); r != nil {
				res = callResult{err: fmt.Errorf("panic in task %s: %v", inv.Task, r)}
			}
			done <- res
		}()

		call := func(ctx context.Context) error {
			out, err := fn(ctx, inv.Input)
			res.out = out
			return err
		}
		if a.intercept != nil {
			res.err = a.intercept(callCtx, &inv, call)
		} else {
			res.err = call(callCtx)
		}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return finish(StatusError, nil, fmt.Errorf("%w: %s: %w", pricing.ErrTaskExecution, inv.Task, res.err))
		}
		if err := checkPayload(inv.Task, res.out); err != nil {
			return finish(StatusError, nil, fmt.Errorf("%w: %w", pricing.ErrTaskExecution, err))
		}
		return finish(StatusOK, res.out, nil)

	case <-callCtx.Done():
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(StatusError, nil, fmt.Errorf("%w: %s: %w", pricing.ErrTaskExecution, inv.Task, ctxErr))
		}
		if !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return finish(StatusError, nil, fmt.Errorf("%w: %s: %w", pricing.ErrTaskExecution, inv.Task, callCtx.Err()))
		}
		a.logger.Warn("task abandoned after timeout",
			slog.String("task", inv.Task.String()),
			slog.String("run_id", inv.RunID.String()),
			slog.Duration("timeout", timeout),
		)
		return finish(StatusTimeout, nil, fmt.Errorf("%w: %s after %s", pricing.ErrTaskTimeout, inv.Task, timeout))
	}
}

// checkPayload verifies the task returned a non-nil payload of its
// expected kind.
func checkPayload(name Name, p Payload) error {
	if p == nil {
		return fmt.Errorf("%s returned no output", name)
	}
	if v := reflect.ValueOf(p); v.Kind() == reflect.Pointer && v.IsNil() {
		return fmt.Errorf("%s returned no output", name)
	}
	if want, ok := ExpectedKind(name); ok && p.Kind() != want {
		return fmt.Errorf("%s returned %s payload, want %s", name, p.Kind(), want)
	}
	return nil
}

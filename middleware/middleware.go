package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Handler is the terminal function that executes the task.
type Handler = func(ctx context.Context) error

// Middleware wraps one task invocation. It is the interceptor type the
// task adapter accepts, so a chain can be handed to task.WithInterceptor
// directly.
type Middleware = task.Interceptor

// Chain composes middleware so that the first one is the outermost:
//
//	Chain(logging, recover, tracing) → logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			h = wrap(mws[i], inv, h)
		}
		return h(ctx)
	}
}

func wrap(m Middleware, inv *task.Invocation, next Handler) Handler {
	return func(ctx context.Context) error { return m(ctx, inv, next) }
}

// Default returns the standard chain: logging, panic recovery, tracing and
// metrics against the global OpenTelemetry providers.
func Default(logger *slog.Logger) Middleware {
	return Chain(Logging(logger), Recover(logger), Tracing(), Metrics())
}

// Outcome labels, matching the lowercase form of task outcome statuses.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
)

// outcome classifies the result of next. A deadline on either the error or
// the invocation context counts as a timeout.
func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

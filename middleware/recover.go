package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Recover returns middleware that turns a panicking task into an error so
// the phase records an ERROR outcome instead of crashing the run.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("task panicked",
				slog.String("task", inv.Task.String()),
				slog.String("run_id", inv.RunID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in task %s: %v", inv.Task, r)
		}()
		return next(ctx)
	}
}

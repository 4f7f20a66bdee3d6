package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Logging returns middleware that logs each task call once it returns.
// Successful calls log at debug, timeouts at warn and failures at error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		l := logger.With(
			slog.String("task", inv.Task.String()),
			slog.String("run_id", inv.RunID.String()),
			slog.String("phase", inv.Phase),
		)
		l.Debug("task started", slog.Duration("timeout", inv.Timeout))

		start := time.Now()
		err := next(ctx)
		elapsed := slog.Duration("elapsed", time.Since(start))

		switch outcome(ctx, err) {
		case outcomeOK:
			l.Debug("task completed", elapsed)
		case outcomeTimeout:
			l.Warn("task timed out", elapsed, slog.Duration("timeout", inv.Timeout))
		default:
			l.Error("task failed", elapsed, slog.String("error", err.Error()))
		}
		return err
	}
}

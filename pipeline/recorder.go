package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
)

// recorder performs the store writes of one run. Each write runs in its
// own goroutine and is abandoned once the write timeout elapses, so a slow
// or hung store never stalls task scheduling. Failures are logged and
// remembered; they never abort the run.
type recorder struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	runID   id.RunID

	failures int
}

func newRecorder(store Store, timeout time.Duration, logger *slog.Logger, runID id.RunID) *recorder {
	if timeout <= 0 {
		timeout = pricing.DefaultConfig().StoreWriteTimeout
	}
	return &recorder{store: store, timeout: timeout, logger: logger, runID: runID}
}

// write runs fn under the write timeout. The context passed to fn is
// detached from ctx's cancellation so a cancelled caller still persists
// the run.
func (rc *recorder) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- fn(wctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-wctx.Done():
		err = fmt.Errorf("write abandoned after %s: %w", rc.timeout, wctx.Err())
	}
	if err == nil {
		return nil
	}

	rc.failures++
	err = fmt.Errorf("%w: %s: %w", pricing.ErrPersistence, op, err)
	rc.logger.Warn("run store write failed",
		slog.String("run_id", rc.runID.String()),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return err
}

func (rc *recorder) create(ctx context.Context, r *Run) {
	snapshot := r.Clone()
	_ = rc.write(ctx, "create", func(ctx context.Context) error {
		return rc.store.CreateRun(ctx, snapshot)
	})
}

func (rc *recorder) status(ctx context.Context, status Status) {
	_ = rc.write(ctx, "update_status", func(ctx context.Context) error {
		return rc.store.UpdateStatus(ctx, rc.runID, status)
	})
}

func (rc *recorder) phase(ctx context.Context, pr PhaseResult) {
	snapshot := pr.Clone()
	_ = rc.write(ctx, "update_phase", func(ctx context.Context) error {
		return rc.store.UpdatePhase(ctx, rc.runID, snapshot)
	})
}

// finalize writes the terminal state. When any earlier write failed the
// whole run is written instead, as a best-effort repair.
func (rc *recorder) finalize(ctx context.Context, r *Run) {
	snapshot := r.Clone()
	if rc.failures > 0 {
		_ = rc.write(ctx, "save", func(ctx context.Context) error {
			return rc.store.SaveRun(ctx, snapshot)
		})
		return
	}
	err := rc.write(ctx, "finalize", func(ctx context.Context) error {
		return rc.store.FinalizeRun(ctx, rc.runID, snapshot.Status, *snapshot.CompletedAt, snapshot.Errors)
	})
	if err != nil {
		_ = rc.write(ctx, "save", func(ctx context.Context) error {
			return rc.store.SaveRun(ctx, snapshot)
		})
	}
}

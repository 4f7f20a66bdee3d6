package ext

import (
	"context"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a run acquires the pipeline guard and begins
// executing.
type RunStarted interface {
	OnRunStarted(ctx context.Context, r *pipeline.Run) error
}

// RunSucceeded is called when every task of every phase returned OK.
type RunSucceeded interface {
	OnRunSucceeded(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error
}

// RunPartial is called when a run produced recommendations but at least
// one task failed.
type RunPartial interface {
	OnRunPartial(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error
}

// RunFailed is called when a run ends FAILED.
type RunFailed interface {
	OnRunFailed(ctx context.Context, r *pipeline.Run, err error) error
}

// ──────────────────────────────────────────────────
// Phase and task hooks
// ──────────────────────────────────────────────────

// TaskCompleted is called after a task returned OK.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, r *pipeline.Run, ph phase.Name, o task.Outcome) error
}

// TaskFailed is called after a task returned ERROR or TIMEOUT.
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, r *pipeline.Run, ph phase.Name, o task.Outcome) error
}

// PhaseCompleted is called once every task of a phase has resolved.
type PhaseCompleted interface {
	OnPhaseCompleted(ctx context.Context, r *pipeline.Run, pr *pipeline.PhaseResult) error
}

// ──────────────────────────────────────────────────
// Trigger hooks
// ──────────────────────────────────────────────────

// TriggerRejected is called when a trigger arrives while a run is in
// progress.
type TriggerRejected interface {
	OnTriggerRejected(ctx context.Context, source pipeline.TriggerSource, reason string, current id.RunID) error
}

// ScheduleFired is called when the periodic schedule starts a run.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, schedule string, runID id.RunID) error
}

// ChangeDetected is called when the change watcher observes an insert on
// a watched collection.
type ChangeDetected interface {
	OnChangeDetected(ctx context.Context, collection string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

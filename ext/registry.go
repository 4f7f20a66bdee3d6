package ext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Ensure Registry implements pipeline.Emitter at compile time.
var _ pipeline.Emitter = (*Registry)(nil)

// hooks is the ordered list of extensions implementing hook interface H,
// each paired with the name captured at registration.
type hooks[H any] []named[H]

type named[H any] struct {
	name string
	hook H
}

// add appends e when it implements H.
func (hs *hooks[H]) add(e Extension) {
	if h, ok := e.(H); ok {
		*hs = append(*hs, named[H]{name: e.Name(), hook: h})
	}
}

// each calls fn for every hook in order, logging and swallowing errors.
// A panicking hook is reported as an error; later hooks still run.
func (hs hooks[H]) each(r *Registry, method string, fn func(H) error) {
	for _, n := range hs {
		if err := call(n.hook, fn); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", method),
				slog.String("extension", n.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func call[H any](h H, fn func(H) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(h)
}

// Registry holds registered extensions and fans pipeline events out to
// the ones implementing each hook. Hook errors are logged and never reach
// the pipeline.
//
// Registration must complete before the coordinator starts; emit methods
// do not lock.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	runStarted      hooks[RunStarted]
	runSucceeded    hooks[RunSucceeded]
	runPartial      hooks[RunPartial]
	runFailed       hooks[RunFailed]
	taskCompleted   hooks[TaskCompleted]
	taskFailed      hooks[TaskFailed]
	phaseCompleted  hooks[PhaseCompleted]
	triggerRejected hooks[TriggerRejected]
	scheduleFired   hooks[ScheduleFired]
	changeDetected  hooks[ChangeDetected]
	shutdown        hooks[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	r.runStarted.add(e)
	r.runSucceeded.add(e)
	r.runPartial.add(e)
	r.runFailed.add(e)
	r.taskCompleted.add(e)
	r.taskFailed.add(e)
	r.phaseCompleted.add(e)
	r.triggerRejected.add(e)
	r.scheduleFired.add(e)
	r.changeDetected.add(e)
	r.shutdown.add(e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Run events
// ──────────────────────────────────────────────────

// EmitRunStarted implements pipeline.Emitter.
func (r *Registry) EmitRunStarted(ctx context.Context, run *pipeline.Run) {
	r.runStarted.each(r, "OnRunStarted", func(h RunStarted) error {
		return h.OnRunStarted(ctx, run)
	})
}

// EmitRunSucceeded implements pipeline.Emitter.
func (r *Registry) EmitRunSucceeded(ctx context.Context, run *pipeline.Run, elapsed time.Duration) {
	r.runSucceeded.each(r, "OnRunSucceeded", func(h RunSucceeded) error {
		return h.OnRunSucceeded(ctx, run, elapsed)
	})
}

// EmitRunPartial implements pipeline.Emitter.
func (r *Registry) EmitRunPartial(ctx context.Context, run *pipeline.Run, elapsed time.Duration) {
	r.runPartial.each(r, "OnRunPartial", func(h RunPartial) error {
		return h.OnRunPartial(ctx, run, elapsed)
	})
}

// EmitRunFailed implements pipeline.Emitter.
func (r *Registry) EmitRunFailed(ctx context.Context, run *pipeline.Run, runErr error) {
	r.runFailed.each(r, "OnRunFailed", func(h RunFailed) error {
		return h.OnRunFailed(ctx, run, runErr)
	})
}

// ──────────────────────────────────────────────────
// Phase and task events
// ──────────────────────────────────────────────────

// EmitTaskCompleted implements pipeline.Emitter.
func (r *Registry) EmitTaskCompleted(ctx context.Context, run *pipeline.Run, ph phase.Name, o task.Outcome) {
	r.taskCompleted.each(r, "OnTaskCompleted", func(h TaskCompleted) error {
		return h.OnTaskCompleted(ctx, run, ph, o)
	})
}

// EmitTaskFailed implements pipeline.Emitter.
func (r *Registry) EmitTaskFailed(ctx context.Context, run *pipeline.Run, ph phase.Name, o task.Outcome) {
	r.taskFailed.each(r, "OnTaskFailed", func(h TaskFailed) error {
		return h.OnTaskFailed(ctx, run, ph, o)
	})
}

// EmitPhaseCompleted implements pipeline.Emitter.
func (r *Registry) EmitPhaseCompleted(ctx context.Context, run *pipeline.Run, pr *pipeline.PhaseResult) {
	r.phaseCompleted.each(r, "OnPhaseCompleted", func(h PhaseCompleted) error {
		return h.OnPhaseCompleted(ctx, run, pr)
	})
}

// ──────────────────────────────────────────────────
// Trigger and lifecycle events
// ──────────────────────────────────────────────────

// EmitTriggerRejected notifies hooks that a trigger did not start a run.
func (r *Registry) EmitTriggerRejected(ctx context.Context, source pipeline.TriggerSource, reason string, current id.RunID) {
	r.triggerRejected.each(r, "OnTriggerRejected", func(h TriggerRejected) error {
		return h.OnTriggerRejected(ctx, source, reason, current)
	})
}

// EmitScheduleFired notifies hooks that the cron scheduler fired.
func (r *Registry) EmitScheduleFired(ctx context.Context, schedule string, runID id.RunID) {
	r.scheduleFired.each(r, "OnScheduleFired", func(h ScheduleFired) error {
		return h.OnScheduleFired(ctx, schedule, runID)
	})
}

// EmitChangeDetected notifies hooks that the watcher saw a data change.
func (r *Registry) EmitChangeDetected(ctx context.Context, collection string) {
	r.changeDetected.each(r, "OnChangeDetected", func(h ChangeDetected) error {
		return h.OnChangeDetected(ctx, collection)
	})
}

// EmitShutdown notifies hooks that the engine is stopping.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.shutdown.each(r, "OnShutdown", func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}

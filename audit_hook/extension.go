package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/ext"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.RunStarted      = (*Extension)(nil)
	_ ext.RunSucceeded    = (*Extension)(nil)
	_ ext.RunPartial      = (*Extension)(nil)
	_ ext.RunFailed       = (*Extension)(nil)
	_ ext.TaskCompleted   = (*Extension)(nil)
	_ ext.TaskFailed      = (*Extension)(nil)
	_ ext.PhaseCompleted  = (*Extension)(nil)
	_ ext.TriggerRejected = (*Extension)(nil)
	_ ext.ScheduleFired   = (*Extension)(nil)
	_ ext.ChangeDetected  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audithook package does not import Chronicle directly: callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
// Callers provide a RecorderFunc adapter that bridges to their audit backend.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
//
// Example bridging to Chronicle:
//
//	audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    b := chronicle.Info(ctx, evt.Action, evt.Resource, evt.ResourceID).
//	        Category(evt.Category).
//	        Outcome(evt.Outcome)
//	    for k, v := range evt.Metadata {
//	        b = b.Meta(k, v)
//	    }
//	    return b.Record()
//	})
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants (mirror chronicle/audit).
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants (mirror chronicle/audit).
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges pipeline lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, r *pipeline.Run) error {
	return e.record(ctx, ActionRunStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"trigger_source", string(r.TriggerSource),
		"reason", r.Reason,
	)
}

// OnRunSucceeded implements ext.RunSucceeded.
func (e *Extension) OnRunSucceeded(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error {
	return e.record(ctx, ActionRunSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"trigger_source", string(r.TriggerSource),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnRunPartial implements ext.RunPartial. A partial run produced results
// with some tasks missing, so it is recorded as a warning.
func (e *Extension) OnRunPartial(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error {
	return e.record(ctx, ActionRunPartial, SeverityWarning, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"trigger_source", string(r.TriggerSource),
		"elapsed_ms", elapsed.Milliseconds(),
		"error_count", len(r.Errors),
	)
}

// OnRunFailed implements ext.RunFailed.
func (e *Extension) OnRunFailed(ctx context.Context, r *pipeline.Run, runErr error) error {
	return e.record(ctx, ActionRunFailed, SeverityCritical, OutcomeFailure,
		ResourceRun, r.ID.String(), CategoryRun, runErr,
		"trigger_source", string(r.TriggerSource),
		"error_count", len(r.Errors),
	)
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCompleted implements ext.TaskCompleted.
func (e *Extension) OnTaskCompleted(ctx context.Context, r *pipeline.Run, ph phase.Name, o task.Outcome) error {
	return e.record(ctx, ActionTaskCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryTask, nil,
		"phase", string(ph),
		"task", string(o.Task),
		"duration_ms", o.Duration.Milliseconds(),
	)
}

// OnTaskFailed implements ext.TaskFailed.
func (e *Extension) OnTaskFailed(ctx context.Context, r *pipeline.Run, ph phase.Name, o task.Outcome) error {
	var taskErr error
	if o.Error != "" {
		taskErr = errors.New(o.Error)
	}
	return e.record(ctx, ActionTaskFailed, SeverityWarning, OutcomeFailure,
		ResourceRun, r.ID.String(), CategoryTask, taskErr,
		"phase", string(ph),
		"task", string(o.Task),
		"status", string(o.Status),
		"duration_ms", o.Duration.Milliseconds(),
	)
}

// OnPhaseCompleted implements ext.PhaseCompleted.
func (e *Extension) OnPhaseCompleted(ctx context.Context, r *pipeline.Run, pr *pipeline.PhaseResult) error {
	failed := 0
	for _, o := range pr.TaskOutcomes {
		if !o.OK() {
			failed++
		}
	}
	outcome := OutcomeSuccess
	if failed > 0 {
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionPhaseCompleted, SeverityInfo, outcome,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"phase", string(pr.Phase),
		"tasks", len(pr.TaskOutcomes),
		"failed_tasks", failed,
		"elapsed_ms", pr.CompletedAt.Sub(pr.StartedAt).Milliseconds(),
	)
}

// ── Trigger hooks ───────────────────────────────────

// OnTriggerRejected implements ext.TriggerRejected.
func (e *Extension) OnTriggerRejected(ctx context.Context, source pipeline.TriggerSource, reason string, current id.RunID) error {
	return e.record(ctx, ActionTriggerRejected, SeverityInfo, OutcomeFailure,
		ResourceRun, current.String(), CategoryTrigger, nil,
		"trigger_source", string(source),
		"reason", reason,
	)
}

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, schedule string, runID id.RunID) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, schedule, CategoryTrigger, nil,
		"run_id", runID.String(),
	)
}

// OnChangeDetected implements ext.ChangeDetected.
func (e *Extension) OnChangeDetected(ctx context.Context, collection string) error {
	return e.record(ctx, ActionChangeDetected, SeverityInfo, OutcomeSuccess,
		ResourceCollection, collection, CategoryTrigger, nil,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

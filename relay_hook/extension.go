package relayhook

import (
	"context"
	"time"

	"github.com/xraph/relay"
	"github.com/xraph/relay/event"

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
	_ ext.PhaseCompleted  = (*Extension)(nil)
	_ ext.TriggerRejected = (*Extension)(nil)
)

// Extension bridges pipeline lifecycle events to Relay for webhook
// delivery. Each lifecycle hook emits a typed event via [relay.Relay.Send].
type Extension struct {
	relay    *relay.Relay
	tenantID string
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that emits pipeline lifecycle events
// through the provided Relay instance.
func New(r *relay.Relay, opts ...Option) *Extension {
	h := &Extension{relay: r}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (h *Extension) OnRunStarted(ctx context.Context, r *pipeline.Run) error {
	return h.send(ctx, EventRunStarted, newRunPayload(r))
}

// OnRunSucceeded implements ext.RunSucceeded.
func (h *Extension) OnRunSucceeded(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error {
	return h.send(ctx, EventRunSucceeded, &runCompletedPayload{
		runPayload: *newRunPayload(r),
		ElapsedMs:  elapsed.Milliseconds(),
		Phases:     phaseNames(r),
	})
}

// OnRunPartial implements ext.RunPartial.
func (h *Extension) OnRunPartial(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error {
	return h.send(ctx, EventRunPartial, &runCompletedPayload{
		runPayload: *newRunPayload(r),
		ElapsedMs:  elapsed.Milliseconds(),
		Phases:     phaseNames(r),
		Errors:     r.Errors,
	})
}

// OnRunFailed implements ext.RunFailed.
func (h *Extension) OnRunFailed(ctx context.Context, r *pipeline.Run, runErr error) error {
	p := &runFailedPayload{
		runPayload: *newRunPayload(r),
		Errors:     r.Errors,
	}
	if runErr != nil {
		p.Error = runErr.Error()
	}
	return h.send(ctx, EventRunFailed, p)
}

// OnPhaseCompleted implements ext.PhaseCompleted.
func (h *Extension) OnPhaseCompleted(ctx context.Context, r *pipeline.Run, pr *pipeline.PhaseResult) error {
	statuses := make(map[task.Name]task.Status, len(pr.TaskOutcomes))
	for name, o := range pr.TaskOutcomes {
		statuses[name] = o.Status
	}
	return h.send(ctx, EventPhaseCompleted, &phasePayload{
		RunID:     r.ID.String(),
		Phase:     pr.Phase,
		ElapsedMs: pr.CompletedAt.Sub(pr.StartedAt).Milliseconds(),
		Tasks:     statuses,
	})
}

// ── Trigger hooks ───────────────────────────────────

// OnTriggerRejected implements ext.TriggerRejected.
func (h *Extension) OnTriggerRejected(ctx context.Context, source pipeline.TriggerSource, reason string, current id.RunID) error {
	return h.send(ctx, EventTriggerRejected, &triggerPayload{
		TriggerSource: source,
		Reason:        reason,
		CurrentRunID:  current.String(),
	})
}

// ── Internal helpers ────────────────────────────────

// send emits an event through Relay if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	return h.relay.Send(ctx, &event.Event{
		Type:     eventType,
		TenantID: h.tenantID,
		Data:     data,
	})
}

func phaseNames(r *pipeline.Run) []phase.Name {
	names := make([]phase.Name, len(r.PhaseResults))
	for i, pr := range r.PhaseResults {
		names[i] = pr.Phase
	}
	return names
}

// ── Default payload types ───────────────────────────

type runPayload struct {
	RunID         string                 `json:"run_id"`
	TriggerSource pipeline.TriggerSource `json:"trigger_source"`
	Reason        string                 `json:"reason,omitempty"`
	Status        pipeline.Status        `json:"status"`
	StartedAt     string                 `json:"started_at"`
}

func newRunPayload(r *pipeline.Run) *runPayload {
	return &runPayload{
		RunID:         r.ID.String(),
		TriggerSource: r.TriggerSource,
		Reason:        r.Reason,
		Status:        r.Status,
		StartedAt:     r.StartedAt.Format(time.RFC3339),
	}
}

type runCompletedPayload struct {
	runPayload
	ElapsedMs int64               `json:"elapsed_ms"`
	Phases    []phase.Name        `json:"phases"`
	Errors    []pipeline.RunError `json:"errors,omitempty"`
}

type runFailedPayload struct {
	runPayload
	Error  string              `json:"error,omitempty"`
	Errors []pipeline.RunError `json:"errors,omitempty"`
}

type phasePayload struct {
	RunID     string                    `json:"run_id"`
	Phase     phase.Name                `json:"phase"`
	ElapsedMs int64                     `json:"elapsed_ms"`
	Tasks     map[task.Name]task.Status `json:"tasks"`
}

type triggerPayload struct {
	TriggerSource pipeline.TriggerSource `json:"trigger_source"`
	Reason        string                 `json:"reason"`
	CurrentRunID  string                 `json:"current_run_id"`
}

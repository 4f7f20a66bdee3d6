package relayhook

import (
	"context"

	"github.com/xraph/relay"
	"github.com/xraph/relay/catalog"
)

// Pipeline lifecycle event types. Each constant maps to one ext lifecycle
// hook and is used as the event.Event.Type when sending via Relay.
const (
	EventRunStarted      = "pricing.run.started"
	EventRunSucceeded    = "pricing.run.succeeded"
	EventRunPartial      = "pricing.run.partial"
	EventRunFailed       = "pricing.run.failed"
	EventPhaseCompleted  = "pricing.phase.completed"
	EventTriggerRejected = "pricing.trigger.rejected"
)

// AllDefinitions returns webhook definitions for all pipeline lifecycle
// event types. Pass these to relay.RegisterEventType to populate the catalog.
func AllDefinitions() []catalog.WebhookDefinition {
	return []catalog.WebhookDefinition{
		// ── Run events ──────────────────────────────────
		{
			Name:        EventRunStarted,
			Description: "Fired when a pipeline run begins executing.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		{
			Name:        EventRunSucceeded,
			Description: "Fired when every task of a run succeeded.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		{
			Name:        EventRunPartial,
			Description: "Fired when a run finished with some tasks failed or timed out.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		{
			Name:        EventRunFailed,
			Description: "Fired when a run could not produce recommendations.",
			Group:       "runs",
			Version:     "2026-01-01",
		},
		// ── Phase events ────────────────────────────────
		{
			Name:        EventPhaseCompleted,
			Description: "Fired after every task of a phase reached a terminal outcome.",
			Group:       "phases",
			Version:     "2026-01-01",
		},
		// ── Trigger events ──────────────────────────────
		{
			Name:        EventTriggerRejected,
			Description: "Fired when a trigger arrived while a run was already in progress.",
			Group:       "triggers",
			Version:     "2026-01-01",
		},
	}
}

// RegisterAll registers all pipeline webhook event types in the Relay catalog.
// Call this once during application startup before sending events.
func RegisterAll(ctx context.Context, r *relay.Relay) error {
	for _, def := range AllDefinitions() {
		if _, err := r.RegisterEventType(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

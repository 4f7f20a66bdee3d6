package relayhook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/relay"
	revent "github.com/xraph/relay/event"
	"github.com/xraph/relay/store/memory"

	"github.com/shivramiyer22/rideshare-sub001/ext"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	rh "github.com/shivramiyer22/rideshare-sub001/relay_hook"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// ── Helpers ─────────────────────────────────────────

func newTestRelay(t *testing.T) *relay.Relay {
	t.Helper()
	r, err := relay.New(relay.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("failed to create relay: %v", err)
	}
	if err := rh.RegisterAll(context.Background(), r); err != nil {
		t.Fatalf("failed to register event types: %v", err)
	}
	return r
}

func newTestRun() *pipeline.Run {
	return pipeline.NewRun(pipeline.SourceManual, "manual")
}

// lastEvent retrieves the most recent event from the relay store with the
// given type. It fails the test if no matching event is found.
func lastEvent(t *testing.T, r *relay.Relay, eventType string) *revent.Event {
	t.Helper()
	events, err := r.Store().ListEvents(context.Background(), revent.ListOpts{
		Type:  eventType,
		Limit: 1,
	})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("no %s event found", eventType)
	}
	return events[0]
}

func countEvents(t *testing.T, r *relay.Relay, eventType string) int {
	t.Helper()
	events, err := r.Store().ListEvents(context.Background(), revent.ListOpts{Type: eventType, Limit: 10})
	if err != nil {
		t.Fatalf("ListEvents(%s) failed: %v", eventType, err)
	}
	return len(events)
}

// ── Tests ───────────────────────────────────────────

func TestRelayHookExtension_Name(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r)
	if h.Name() != "relay-hook" {
		t.Errorf("expected name %q, got %q", "relay-hook", h.Name())
	}
}

func TestRelayHookExtension_RunSucceeded(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r)

	if err := h.OnRunSucceeded(context.Background(), newTestRun(), 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := lastEvent(t, r, rh.EventRunSucceeded)
	// Pipeline events are system-level unless a tenant is configured.
	if evt.TenantID != "" {
		t.Errorf("TenantID: want empty, got %q", evt.TenantID)
	}
}

func TestRelayHookExtension_WithTenant(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r, rh.WithTenant("market-sf"))

	if err := h.OnRunPartial(context.Background(), newTestRun(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := lastEvent(t, r, rh.EventRunPartial)
	if evt.TenantID != "market-sf" {
		t.Errorf("TenantID: want %q, got %q", "market-sf", evt.TenantID)
	}
}

func TestRelayHookExtension_RunFailed(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r)

	if err := h.OnRunFailed(context.Background(), newTestRun(), errors.New("recommendation failed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lastEvent(t, r, rh.EventRunFailed)
}

func TestRelayHookExtension_PayloadFunc(t *testing.T) {
	r := newTestRelay(t)
	var called bool
	h := rh.New(r, rh.WithPayloadFunc(rh.EventRunStarted, func(args any) (any, error) {
		called = true
		return map[string]string{"custom": "yes"}, nil
	}))

	if err := h.OnRunStarted(context.Background(), newTestRun()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("payload func not called")
	}
	lastEvent(t, r, rh.EventRunStarted)
}

func TestRelayHookExtension_PayloadFuncError(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r, rh.WithPayloadFunc(rh.EventRunStarted, func(any) (any, error) {
		return nil, errors.New("bad payload")
	}))

	if err := h.OnRunStarted(context.Background(), newTestRun()); err == nil {
		t.Fatal("expected payload error")
	}
	if got := countEvents(t, r, rh.EventRunStarted); got != 0 {
		t.Errorf("expected 0 events, got %d", got)
	}
}

func TestRelayHookExtension_WithEvents_FiltersDisabled(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r, rh.WithEvents(rh.EventRunSucceeded))

	ctx := context.Background()
	run := newTestRun()

	// Started is NOT in the enabled set: should be silently skipped.
	if err := h.OnRunStarted(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := countEvents(t, r, rh.EventRunStarted); got != 0 {
		t.Errorf("expected 0 started events (disabled), got %d", got)
	}

	// Succeeded IS enabled: should be sent.
	if err := h.OnRunSucceeded(ctx, run, 50*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := countEvents(t, r, rh.EventRunSucceeded); got != 1 {
		t.Errorf("expected 1 succeeded event, got %d", got)
	}
}

func TestRelayHookExtension_ViaRegistry(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r)
	logger := slog.Default()

	reg := ext.NewRegistry(logger)
	reg.Register(h)

	ctx := context.Background()
	run := newTestRun()
	now := time.Now()
	pr := &pipeline.PhaseResult{
		Phase:       phase.Signals,
		StartedAt:   now,
		CompletedAt: now.Add(time.Second),
		TaskOutcomes: map[task.Name]task.Outcome{
			task.Forecasting: {Task: task.Forecasting, Status: task.StatusOK},
		},
	}

	reg.EmitRunStarted(ctx, run)
	reg.EmitPhaseCompleted(ctx, run, pr)
	reg.EmitRunSucceeded(ctx, run, time.Second)
	reg.EmitRunPartial(ctx, run, time.Second)
	reg.EmitRunFailed(ctx, run, errors.New("fail"))
	reg.EmitTriggerRejected(ctx, pipeline.SourceScheduled, "scheduled", run.ID)

	for _, def := range rh.AllDefinitions() {
		if got := countEvents(t, r, def.Name); got != 1 {
			t.Errorf("%s: want 1 event, got %d", def.Name, got)
		}
	}
}

// Package storetest provides a conformance suite for pipeline.Store
// implementations. Backend tests call [Run] with a constructor that
// returns a fresh, migrated store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Factory returns an empty store ready for use.
type Factory func(t *testing.T) pipeline.Store

// Run executes the conformance suite against the stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s pipeline.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"UpdateStatus", testUpdateStatus},
		{"UpdateStatusKeepsTerminal", testUpdateStatusKeepsTerminal},
		{"UpdatePhaseIdempotent", testUpdatePhaseIdempotent},
		{"UpdatePhaseKeepsOrder", testUpdatePhaseKeepsOrder},
		{"UpdatePhaseConcurrent", testUpdatePhaseConcurrent},
		{"FinalizeRun", testFinalizeRun},
		{"SaveRunUpserts", testSaveRunUpserts},
		{"ListRunsOrder", testListRunsOrder},
		{"LatestRun", testLatestRun},
		{"LatestRunEmpty", testLatestRunEmpty},
		{"LatestRunIgnoresOlderSave", testLatestRunIgnoresOlderSave},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewRun returns a PENDING run that started at the given offset from now.
func NewRun(offset time.Duration) *pipeline.Run {
	r := pipeline.NewRun(pipeline.SourceManual, "test")
	r.StartedAt = time.Now().UTC().Add(offset).Truncate(time.Millisecond)
	return r
}

// SignalsResult returns a phase result with one OK forecast and one timed
// out rule generation.
func SignalsResult() pipeline.PhaseResult {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return pipeline.PhaseResult{
		Phase:       phase.Signals,
		StartedAt:   now,
		CompletedAt: now.Add(5 * time.Second),
		TaskOutcomes: map[task.Name]task.Outcome{
			task.Forecasting: {
				Task:        task.Forecasting,
				Status:      task.StatusOK,
				Output:      &task.ForecastResult{Forecasts: []task.Forecast{{PricingModel: "STANDARD", HorizonDays: 30, PredictedRides: 1200}}},
				StartedAt:   now,
				CompletedAt: now.Add(2 * time.Second),
				Duration:    2 * time.Second,
			},
			task.Analysis: {
				Task:        task.Analysis,
				Status:      task.StatusTimeout,
				Error:       "pricing: task timed out: analysis after 5s",
				StartedAt:   now,
				CompletedAt: now.Add(5 * time.Second),
				Duration:    5 * time.Second,
			},
		},
	}
}

func recommendationResult() pipeline.PhaseResult {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return pipeline.PhaseResult{
		Phase:       phase.Recommendation,
		StartedAt:   now,
		CompletedAt: now.Add(time.Second),
		TaskOutcomes: map[task.Name]task.Outcome{
			task.Recommendation: {
				Task:   task.Recommendation,
				Status: task.StatusOK,
				Output: &task.RecommendationResult{Recommendations: []task.RecommendedAction{{ID: "rec-1", Title: "Evening surge"}}},
			},
		},
	}
}

func ctx() context.Context { return context.Background() }

func mustCreate(t *testing.T, s pipeline.Store, r *pipeline.Run) {
	t.Helper()
	if err := s.CreateRun(ctx(), r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
}

func mustGet(t *testing.T, s pipeline.Store, runID id.RunID) *pipeline.Run {
	t.Helper()
	got, err := s.GetRun(ctx(), runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	return got
}

func testCreateAndGet(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)

	got := mustGet(t, s, r.ID)
	if got.ID.String() != r.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, r.ID)
	}
	if got.Status != pipeline.StatusPending {
		t.Errorf("Status = %s, want PENDING", got.Status)
	}
	if got.TriggerSource != pipeline.SourceManual || got.Reason != "test" {
		t.Errorf("trigger = %s/%q", got.TriggerSource, got.Reason)
	}
	if !got.StartedAt.Equal(r.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, r.StartedAt)
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt set on a pending run")
	}
}

func testCreateDuplicate(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)
	if err := s.CreateRun(ctx(), r); !errors.Is(err, pricing.ErrRunAlreadyExists) {
		t.Errorf("duplicate CreateRun error = %v, want ErrRunAlreadyExists", err)
	}
}

func testGetMissing(t *testing.T, s pipeline.Store) {
	if _, err := s.GetRun(ctx(), id.NewRunID()); !errors.Is(err, pricing.ErrRunNotFound) {
		t.Errorf("GetRun error = %v, want ErrRunNotFound", err)
	}
}

func testUpdateStatus(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)
	if err := s.UpdateStatus(ctx(), r.ID, pipeline.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got := mustGet(t, s, r.ID); got.Status != pipeline.StatusRunning {
		t.Errorf("Status = %s, want RUNNING", got.Status)
	}
	if err := s.UpdateStatus(ctx(), id.NewRunID(), pipeline.StatusRunning); !errors.Is(err, pricing.ErrRunNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrRunNotFound", err)
	}
}

func testUpdateStatusKeepsTerminal(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)
	if err := s.FinalizeRun(ctx(), r.ID, pipeline.StatusSucceeded, time.Now().UTC(), nil); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}
	if err := s.UpdateStatus(ctx(), r.ID, pipeline.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got := mustGet(t, s, r.ID); got.Status != pipeline.StatusSucceeded {
		t.Errorf("Status = %s, terminal status was overwritten", got.Status)
	}
}

func testUpdatePhaseIdempotent(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)
	pr := SignalsResult()

	for i := 0; i < 2; i++ {
		if err := s.UpdatePhase(ctx(), r.ID, pr); err != nil {
			t.Fatalf("UpdatePhase #%d: %v", i, err)
		}
	}

	got := mustGet(t, s, r.ID)
	if len(got.PhaseResults) != 1 {
		t.Fatalf("phase results = %d, want 1", len(got.PhaseResults))
	}
	signals, ok := got.Phase(phase.Signals)
	if !ok {
		t.Fatal("signals phase missing")
	}
	fc, ok := signals.TaskOutcomes[task.Forecasting]
	if !ok || fc.Status != task.StatusOK {
		t.Fatalf("forecasting outcome = %+v", fc)
	}
	if _, ok := fc.Output.(*task.ForecastResult); !ok {
		t.Errorf("forecast output decoded as %T", fc.Output)
	}
	if an := signals.TaskOutcomes[task.Analysis]; an.Status != task.StatusTimeout || an.Error == "" {
		t.Errorf("analysis outcome = %+v", an)
	}
}

func testUpdatePhaseKeepsOrder(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)

	if err := s.UpdatePhase(ctx(), r.ID, SignalsResult()); err != nil {
		t.Fatalf("UpdatePhase(signals): %v", err)
	}
	if err := s.UpdatePhase(ctx(), r.ID, recommendationResult()); err != nil {
		t.Fatalf("UpdatePhase(recommendation): %v", err)
	}
	// Rewriting the first phase must not move it.
	if err := s.UpdatePhase(ctx(), r.ID, SignalsResult()); err != nil {
		t.Fatalf("UpdatePhase(signals again): %v", err)
	}

	got := mustGet(t, s, r.ID)
	if len(got.PhaseResults) != 2 {
		t.Fatalf("phase results = %d, want 2", len(got.PhaseResults))
	}
	if got.PhaseResults[0].Phase != phase.Signals || got.PhaseResults[1].Phase != phase.Recommendation {
		t.Errorf("phase order = %s, %s", got.PhaseResults[0].Phase, got.PhaseResults[1].Phase)
	}
	if err := s.UpdatePhase(ctx(), id.NewRunID(), SignalsResult()); !errors.Is(err, pricing.ErrRunNotFound) {
		t.Errorf("UpdatePhase(missing) error = %v, want ErrRunNotFound", err)
	}
}

func testUpdatePhaseConcurrent(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)
	pr := SignalsResult()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.UpdatePhase(ctx(), r.ID, pr); err != nil {
				t.Errorf("UpdatePhase: %v", err)
			}
		}()
	}
	wg.Wait()

	got := mustGet(t, s, r.ID)
	if len(got.PhaseResults) != 1 {
		t.Fatalf("phase results = %d, want 1", len(got.PhaseResults))
	}
	if got.PhaseResults[0].Phase != phase.Signals {
		t.Errorf("phase = %s, want %s", got.PhaseResults[0].Phase, phase.Signals)
	}
}

func testFinalizeRun(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	mustCreate(t, s, r)
	completed := time.Now().UTC().Truncate(time.Millisecond)
	errs := []pipeline.RunError{{Phase: phase.WhatIf, Task: task.WhatIf, Message: "simulation failed"}}

	if err := s.FinalizeRun(ctx(), r.ID, pipeline.StatusPartial, completed, errs); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}

	got := mustGet(t, s, r.ID)
	if got.Status != pipeline.StatusPartial {
		t.Errorf("Status = %s, want PARTIAL", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
	if len(got.Errors) != 1 || got.Errors[0].Task != task.WhatIf {
		t.Errorf("Errors = %+v", got.Errors)
	}
	if err := s.FinalizeRun(ctx(), id.NewRunID(), pipeline.StatusFailed, completed, nil); !errors.Is(err, pricing.ErrRunNotFound) {
		t.Errorf("FinalizeRun(missing) error = %v, want ErrRunNotFound", err)
	}
}

func testSaveRunUpserts(t *testing.T, s pipeline.Store) {
	r := NewRun(0)
	r.PhaseResults = r.PhaseResults.Put(SignalsResult())
	completed := time.Now().UTC().Truncate(time.Millisecond)
	r.Status = pipeline.StatusFailed
	r.CompletedAt = &completed
	r.Errors = []pipeline.RunError{{Phase: phase.Signals, Message: "phase signals failed"}}

	// Never created: SaveRun must insert.
	if err := s.SaveRun(ctx(), r); err != nil {
		t.Fatalf("SaveRun(insert): %v", err)
	}
	got := mustGet(t, s, r.ID)
	if got.Status != pipeline.StatusFailed || len(got.PhaseResults) != 1 {
		t.Fatalf("saved run = %+v", got)
	}

	r.Status = pipeline.StatusPartial
	if err := s.SaveRun(ctx(), r); err != nil {
		t.Fatalf("SaveRun(update): %v", err)
	}
	if got := mustGet(t, s, r.ID); got.Status != pipeline.StatusPartial {
		t.Errorf("Status = %s, want PARTIAL", got.Status)
	}
}

func testListRunsOrder(t *testing.T, s pipeline.Store) {
	oldest := NewRun(-3 * time.Minute)
	middle := NewRun(-2 * time.Minute)
	newest := NewRun(-1 * time.Minute)
	for _, r := range []*pipeline.Run{middle, newest, oldest} {
		mustCreate(t, s, r)
	}

	runs, err := s.ListRuns(ctx(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	want := []id.RunID{newest.ID, middle.ID, oldest.ID}
	if len(runs) != len(want) {
		t.Fatalf("ListRuns returned %d runs, want %d", len(runs), len(want))
	}
	for i := range want {
		if runs[i].ID.String() != want[i].String() {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want[i])
		}
	}

	limited, err := s.ListRuns(ctx(), 2)
	if err != nil {
		t.Fatalf("ListRuns(2): %v", err)
	}
	if len(limited) != 2 || limited[0].ID.String() != newest.ID.String() {
		t.Errorf("ListRuns(2) = %d runs", len(limited))
	}
}

func testLatestRun(t *testing.T, s pipeline.Store) {
	older := NewRun(-time.Minute)
	newer := NewRun(0)
	mustCreate(t, s, newer)
	mustCreate(t, s, older)

	got, err := s.LatestRun(ctx())
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got.ID.String() != newer.ID.String() {
		t.Errorf("LatestRun = %s, want %s", got.ID, newer.ID)
	}

	if err := s.UpdateStatus(ctx(), newer.ID, pipeline.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err = s.LatestRun(ctx())
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got.Status != pipeline.StatusRunning {
		t.Errorf("LatestRun status = %s, want RUNNING", got.Status)
	}
}

func testLatestRunEmpty(t *testing.T, s pipeline.Store) {
	if _, err := s.LatestRun(ctx()); !errors.Is(err, pricing.ErrRunNotFound) {
		t.Errorf("LatestRun error = %v, want ErrRunNotFound", err)
	}
}

func testLatestRunIgnoresOlderSave(t *testing.T, s pipeline.Store) {
	newer := NewRun(0)
	mustCreate(t, s, newer)

	older := NewRun(-time.Hour)
	older.Status = pipeline.StatusSucceeded
	if err := s.SaveRun(ctx(), older); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.LatestRun(ctx())
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got.ID.String() != newer.ID.String() {
		t.Errorf("LatestRun = %s, want %s", got.ID, newer.ID)
	}
}

func testPing(t *testing.T, s pipeline.Store) {
	if err := s.Ping(ctx()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

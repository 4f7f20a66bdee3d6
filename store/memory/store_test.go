package memory

import (
	"context"
	"errors"
	"testing"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/store/storetest"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := New()
	_ = s.Close()

	if err := s.Ping(context.Background()); !errors.Is(err, pricing.ErrStoreClosed) {
		t.Errorf("Ping error = %v, want ErrStoreClosed", err)
	}
	if err := s.CreateRun(context.Background(), storetest.NewRun(0)); !errors.Is(err, pricing.ErrStoreClosed) {
		t.Errorf("CreateRun error = %v, want ErrStoreClosed", err)
	}
}

// ──────────────────────────────────────────────────
// Run Store tests
// ──────────────────────────────────────────────────

func TestConformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) pipeline.Store { return New() })
}

func TestReturnedRunsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := storetest.NewRun(0)
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	got.Status = pipeline.StatusFailed
	got.Errors = append(got.Errors, pipeline.RunError{Message: "mutated"})

	again, _ := s.GetRun(ctx, r.ID)
	if again.Status != pipeline.StatusPending || len(again.Errors) != 0 {
		t.Error("mutating a returned run changed the stored run")
	}
}

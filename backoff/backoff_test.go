package backoff_test

import (
	"testing"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.Constant(5 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 5ms", attempt, got)
		}
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	e := backoff.Exponential{Initial: time.Second, Max: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_JitterWithinBounds(t *testing.T) {
	e := backoff.Exponential{Initial: time.Second, Max: 4 * time.Second, Jitter: true}

	seen := make(map[time.Duration]bool)
	for range 100 {
		got := e.Delay(3)
		if got < 0 || got > 4*time.Second {
			t.Fatalf("Delay(3) = %v, want within [0, 4s]", got)
		}
		seen[got] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected jittered delays, got %d distinct values", len(seen))
	}
}

func TestDefault(t *testing.T) {
	if d := backoff.Default().Delay(1); d < 0 || d > time.Second {
		t.Errorf("Default().Delay(1) = %v, want within [0, 1s]", d)
	}
}

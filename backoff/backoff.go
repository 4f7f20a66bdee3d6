// Package backoff paces change-stream reconnects in the ingestion watcher.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy returns the delay before reconnect attempt n (1-based).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to a Strategy.
type Func func(attempt int) time.Duration

// Delay implements Strategy.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant waits d before every attempt.
func Constant(d time.Duration) Strategy {
	return Func(func(int) time.Duration { return d })
}

// Exponential doubles the delay on each attempt starting from Initial,
// capped at Max when Max is positive. With Jitter the delay is drawn
// uniformly from [0, computed delay].
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// Delay implements Strategy.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter {
		d *= rand.Float64() //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(d)
}

// Default is the watcher's reconnect strategy: jittered exponential from
// one second up to one minute.
func Default() Strategy {
	return Exponential{Initial: time.Second, Max: time.Minute, Jitter: true}
}

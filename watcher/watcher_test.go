package watcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/backoff"
	"github.com/shivramiyer22/rideshare-sub001/gateway"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/watcher"
)

// chanSource delivers changes sent on its channel. Each Watch call first
// consumes one entry of failures, returning it immediately when non-nil.
type chanSource struct {
	changes chan watcher.Change

	mu       sync.Mutex
	failures []error
	watches  int
}

func newChanSource(failures ...error) *chanSource {
	return &chanSource{changes: make(chan watcher.Change, 64), failures: failures}
}

func (s *chanSource) Watch(ctx context.Context, fn func(watcher.Change)) error {
	s.mu.Lock()
	s.watches++
	var fail error
	if len(s.failures) > 0 {
		fail = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-s.changes:
			fn(c)
		}
	}
}

func (s *chanSource) Watches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watches
}

func (s *chanSource) send(n int) {
	for i := 0; i < n; i++ {
		s.changes <- watcher.Change{Collection: "rides", OperationType: "insert", ObservedAt: time.Now()}
	}
}

// triggerSpy answers every trigger with status.
type triggerSpy struct {
	calls  atomic.Int64
	status gateway.Status
	err    error

	mu      sync.Mutex
	reasons []string
}

func (s *triggerSpy) Fn() watcher.TriggerFunc {
	return func(_ context.Context, req gateway.Request) (*gateway.Response, error) {
		s.calls.Add(1)
		s.mu.Lock()
		s.reasons = append(s.reasons, req.Reason)
		s.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		status := s.status
		if status == "" {
			status = gateway.StatusAccepted
		}
		return &gateway.Response{Status: status, RunID: id.NewRunID()}, nil
	}
}

type changeEmitter struct {
	mu          sync.Mutex
	collections []string
}

func (e *changeEmitter) EmitChangeDetected(_ context.Context, collection string) {
	e.mu.Lock()
	e.collections = append(e.collections, collection)
	e.mu.Unlock()
}

func (e *changeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.collections)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, src watcher.ChangeSource, spy *triggerSpy, opts ...watcher.Option) *watcher.Watcher {
	t.Helper()
	opts = append([]watcher.Option{watcher.WithBackoff(backoff.Constant(time.Millisecond))}, opts...)
	w := watcher.New(src, spy.Fn(), opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop(context.Background()) })
	return w
}

func TestWatcher_TriggersOnChange(t *testing.T) {
	src := newChanSource()
	spy := &triggerSpy{}
	emitter := &changeEmitter{}
	w := startWatcher(t, src, spy, watcher.WithDebounce(0), watcher.WithEmitter(emitter))

	src.send(1)
	waitFor(t, func() bool { return spy.calls.Load() == 1 })

	spy.mu.Lock()
	reason := spy.reasons[0]
	spy.mu.Unlock()
	if reason != gateway.ReasonChangeStream {
		t.Errorf("reason = %q, want %q", reason, gateway.ReasonChangeStream)
	}
	waitFor(t, func() bool { return emitter.count() == 1 })

	stats := w.Stats()
	if stats.Changes != 1 || stats.Accepted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWatcher_DebounceCoalescesBurst(t *testing.T) {
	src := newChanSource()
	spy := &triggerSpy{}
	emitter := &changeEmitter{}
	w := startWatcher(t, src, spy, watcher.WithDebounce(50*time.Millisecond), watcher.WithEmitter(emitter))

	src.send(20)
	waitFor(t, func() bool { return emitter.count() == 20 })
	waitFor(t, func() bool { return spy.calls.Load() >= 1 })
	time.Sleep(120 * time.Millisecond)

	if got := spy.calls.Load(); got != 1 {
		t.Errorf("trigger calls = %d, want 1", got)
	}
	if stats := w.Stats(); stats.Changes != 20 {
		t.Errorf("changes = %d, want 20", stats.Changes)
	}
}

func TestWatcher_ToleratesRejections(t *testing.T) {
	for _, status := range []gateway.Status{gateway.StatusAlreadyRunning, gateway.StatusThrottled} {
		t.Run(string(status), func(t *testing.T) {
			src := newChanSource()
			spy := &triggerSpy{status: status}
			w := startWatcher(t, src, spy, watcher.WithDebounce(0))

			src.send(1)
			waitFor(t, func() bool { return spy.calls.Load() == 1 })
			src.send(1)
			waitFor(t, func() bool { return spy.calls.Load() == 2 })

			if stats := w.Stats(); stats.Accepted != 0 || stats.Triggers != 2 {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}

func TestWatcher_TriggerErrorDoesNotStop(t *testing.T) {
	src := newChanSource()
	spy := &triggerSpy{err: errors.New("boom")}
	startWatcher(t, src, spy, watcher.WithDebounce(0))

	src.send(1)
	waitFor(t, func() bool { return spy.calls.Load() == 1 })
	src.send(1)
	waitFor(t, func() bool { return spy.calls.Load() == 2 })
}

func TestWatcher_ReconnectsAfterFailure(t *testing.T) {
	src := newChanSource(errors.New("stream reset"), errors.New("stream reset"))
	spy := &triggerSpy{}
	w := startWatcher(t, src, spy, watcher.WithDebounce(0))

	waitFor(t, func() bool { return src.Watches() == 3 })
	src.send(1)
	waitFor(t, func() bool { return spy.calls.Load() == 1 })

	if got := w.Stats().Reconnects; got != 2 {
		t.Errorf("reconnects = %d, want 2", got)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	src := newChanSource()
	spy := &triggerSpy{}
	w := watcher.New(src, spy.Fn(), watcher.WithDebounce(0))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, watcher.ErrStarted) {
		t.Errorf("second Start err = %v, want ErrStarted", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	src.send(1)
	time.Sleep(20 * time.Millisecond)
	if got := spy.calls.Load(); got != 0 {
		t.Errorf("trigger calls after stop = %d, want 0", got)
	}
}

func TestNewMongoSource_DefaultCollections(t *testing.T) {
	if len(watcher.DefaultCollections) == 0 {
		t.Fatal("no default collections")
	}
	if src := watcher.NewMongoSource(nil); src == nil {
		t.Fatal("NewMongoSource returned nil")
	}
}

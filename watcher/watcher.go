// Package watcher turns changes on the ingestion collections into pipeline
// triggers.
//
// A [ChangeSource] delivers [Change] events; the [Watcher] coalesces bursts
// within the debounce window into one trigger with reason "change_stream".
// Already-running and throttled answers from the gateway are expected and
// logged at debug level. When the source fails, the watcher reconnects
// after a delay from its backoff strategy.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/backoff"
	"github.com/shivramiyer22/rideshare-sub001/gateway"
)

// Change is one observed write on an ingestion collection.
type Change struct {
	Collection    string
	OperationType string
	ObservedAt    time.Time
}

// ChangeSource streams changes to fn until ctx is cancelled or the stream
// fails. fn is called on the goroutine running Watch. Returning nil after
// ctx cancellation is a clean stop.
type ChangeSource interface {
	Watch(ctx context.Context, fn func(Change)) error
}

// TriggerFunc requests a run. gateway.Gateway.Trigger satisfies it.
type TriggerFunc func(ctx context.Context, req gateway.Request) (*gateway.Response, error)

// Emitter emits change lifecycle events.
// ext.Registry satisfies this interface via EmitChangeDetected.
type Emitter interface {
	EmitChangeDetected(ctx context.Context, collection string)
}

// ErrStarted is returned by Start when the watcher is already running.
var ErrStarted = errors.New("pricing/watcher: already started")

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithEmitter sets the emitter notified for every change.
func WithEmitter(e Emitter) Option {
	return func(w *Watcher) { w.emitter = e }
}

// WithDebounce sets the window over which changes are coalesced into one
// trigger. Zero triggers on every change.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithBackoff sets the reconnect delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(w *Watcher) { w.backoff = s }
}

// Watcher consumes a ChangeSource and triggers runs.
type Watcher struct {
	source   ChangeSource
	trigger  TriggerFunc
	emitter  Emitter
	logger   *slog.Logger
	debounce time.Duration
	backoff  backoff.Strategy

	pending chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   Stats
	running bool
}

// Stats counts watcher activity.
type Stats struct {
	Changes    int64 `json:"changes"`
	Triggers   int64 `json:"triggers"`
	Accepted   int64 `json:"accepted"`
	Reconnects int64 `json:"reconnects"`
}

// New creates a stopped Watcher.
func New(source ChangeSource, trigger TriggerFunc, opts ...Option) *Watcher {
	w := &Watcher{
		source:   source,
		trigger:  trigger,
		logger:   slog.Default(),
		debounce: 2 * time.Second,
		backoff:  backoff.Default(),
		pending:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Start launches the watch and trigger goroutines.
func (w *Watcher) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrStarted
	}
	w.running = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(2)
	go w.watchLoop(ctx)
	go w.triggerLoop(ctx)
	w.logger.Info("change watcher started", slog.Duration("debounce", w.debounce))
	return nil
}

// Stop cancels the stream and waits for the goroutines to exit.
func (w *Watcher) Stop(_ context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("change watcher stopped")
	return nil
}

// watchLoop keeps the change stream open, reconnecting with backoff.
func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	attempt := 0
	for {
		delivered := false
		err := w.source.Watch(ctx, func(c Change) {
			delivered = true
			w.onChange(ctx, c)
		})
		if ctx.Err() != nil {
			return
		}
		if delivered {
			attempt = 0
		}
		attempt++

		delay := w.backoff.Delay(attempt)
		w.logger.Warn("change stream interrupted, reconnecting",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		w.mu.Lock()
		w.stats.Reconnects++
		w.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Watcher) onChange(ctx context.Context, c Change) {
	w.mu.Lock()
	w.stats.Changes++
	w.mu.Unlock()

	if w.emitter != nil {
		w.emitter.EmitChangeDetected(ctx, c.Collection)
	}
	w.logger.Debug("change detected",
		slog.String("collection", c.Collection),
		slog.String("operation", c.OperationType),
	)

	select {
	case w.pending <- struct{}{}:
	default:
		// A trigger is already pending.
	}
}

// triggerLoop fires one trigger per debounce window that saw changes.
func (w *Watcher) triggerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
		}

		if w.debounce > 0 {
			timer := time.NewTimer(w.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			// Changes seen during the window are covered by this trigger.
			select {
			case <-w.pending:
			default:
			}
		}

		w.fire(ctx)
	}
}

func (w *Watcher) fire(ctx context.Context) {
	w.mu.Lock()
	w.stats.Triggers++
	w.mu.Unlock()

	resp, err := w.trigger(ctx, gateway.Request{Reason: gateway.ReasonChangeStream})
	if err != nil {
		w.logger.Warn("change trigger error", slog.String("error", err.Error()))
		return
	}

	switch resp.Status {
	case gateway.StatusAccepted:
		w.mu.Lock()
		w.stats.Accepted++
		w.mu.Unlock()
		w.logger.Info("change triggered run", slog.String("run_id", resp.RunID.String()))
	default:
		w.logger.Debug("change trigger not accepted",
			slog.String("status", string(resp.Status)),
			slog.String("run_id", resp.RunID.String()),
		)
	}
}

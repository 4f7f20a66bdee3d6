package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/shivramiyer22/rideshare-sub001/gateway"
	"github.com/shivramiyer22/rideshare-sub001/id"
)

// TriggerFunc is the callback the scheduler uses to request a run.
// gateway.Gateway.Trigger satisfies it; the engine wires the two.
type TriggerFunc func(ctx context.Context, req gateway.Request) (*gateway.Response, error)

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, schedule string, runID id.RunID)
}

// ErrStarted is returned by Start when the scheduler is already running.
var ErrStarted = errors.New("pricing/cron: scheduler already started")

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks whether the
// schedule is due.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithEmitter sets the emitter notified after accepted triggers.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock replaces time.Now for due-time computation.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler triggers a pipeline run each time its schedule comes due.
type Scheduler struct {
	expr     string
	schedule cronlib.Schedule
	trigger  TriggerFunc
	emitter  Emitter
	logger   *slog.Logger
	now      func() time.Time

	tickInterval time.Duration

	mu       sync.Mutex
	next     time.Time
	lastFire time.Time
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler parses expr and returns a stopped Scheduler.
func NewScheduler(expr string, trigger TriggerFunc, opts ...SchedulerOption) (*Scheduler, error) {
	if trigger == nil {
		return nil, errors.New("pricing/cron: nil trigger")
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("pricing/cron: parse schedule %q: %w", expr, err)
	}
	s := &Scheduler{
		expr:         expr,
		schedule:     sched,
		trigger:      trigger,
		logger:       slog.Default(),
		now:          time.Now,
		tickInterval: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule returns the cron expression.
func (s *Scheduler) Schedule() string { return s.expr }

// NextRun returns the next due time, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// LastFired returns when the schedule last fired, or the zero time.
func (s *Scheduler) LastFired() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFire
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrStarted
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.next = s.schedule.Next(s.now().UTC())
	next := s.next
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.expr),
		slog.Time("next_run", next),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
// A trigger in flight completes first.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.next = time.Time{}
	s.mu.Unlock()
	s.logger.Info("cron scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and triggers when the schedule is due.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := s.now().UTC()

	s.mu.Lock()
	due := !s.next.IsZero() && !s.next.After(now)
	if due {
		s.lastFire = now
		// Missed ticks collapse into one fire.
		s.next = s.schedule.Next(now)
	}
	s.mu.Unlock()

	if due {
		s.fire(context.Background())
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	resp, err := s.trigger(ctx, gateway.Request{Reason: gateway.ReasonScheduled})
	if err != nil {
		s.logger.Error("scheduled trigger error",
			slog.String("schedule", s.expr),
			slog.String("error", err.Error()),
		)
		return
	}

	if resp.Status != gateway.StatusAccepted {
		s.logger.Info("scheduled trigger skipped",
			slog.String("schedule", s.expr),
			slog.String("status", string(resp.Status)),
			slog.String("run_id", resp.RunID.String()),
		)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, s.expr, resp.RunID)
	}

	s.logger.Info("cron fired",
		slog.String("schedule", s.expr),
		slog.String("run_id", resp.RunID.String()),
	)
}

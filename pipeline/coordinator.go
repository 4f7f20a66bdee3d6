package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// tracerName is the instrumentation scope name for run spans.
const tracerName = "github.com/shivramiyer22/rideshare-sub001/pipeline"

// DefaultForecastHorizons are the forecast horizons requested per run.
var DefaultForecastHorizons = []int{30, 60, 90}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithConfig sets the pipeline configuration.
func WithConfig(cfg pricing.Config) Option {
	return func(c *Coordinator) { c.config = cfg }
}

// WithGraph replaces the phase graph. The default is phase.Default().
func WithGraph(g *phase.Graph) Option {
	return func(c *Coordinator) { c.graph = g }
}

// WithEmitter sets the receiver of run lifecycle events.
func WithEmitter(e Emitter) Option {
	return func(c *Coordinator) { c.emitter = e }
}

// WithInterceptor sets the interceptor applied to every task invocation,
// typically middleware.Default(logger).
func WithInterceptor(ic task.Interceptor) Option {
	return func(c *Coordinator) { c.interceptor = ic }
}

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// WithForecastHorizons sets the horizons passed to the forecasting task.
func WithForecastHorizons(days ...int) Option {
	return func(c *Coordinator) { c.horizons = append([]int(nil), days...) }
}

// Snapshot is the derived, in-memory view of the pipeline state.
type Snapshot struct {
	IsRunning     bool       `json:"is_running"`
	CurrentRunID  id.RunID   `json:"current_run_id"`
	CurrentPhase  phase.Name `json:"current_phase,omitempty"`
	CurrentStatus Status     `json:"current_status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`

	// Last finished run observed by this coordinator.
	LastRunID       id.RunID   `json:"last_run_id"`
	LastStatus      Status     `json:"last_status,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Coordinator owns the single run-in-progress guard and drives runs
// through the phase graph. At most one run executes at a time.
type Coordinator struct {
	adapter     *task.Adapter
	store       Store
	graph       *phase.Graph
	config      pricing.Config
	logger      *slog.Logger
	emitter     Emitter
	interceptor task.Interceptor
	tracer      trace.Tracer
	horizons    []int

	mu    sync.Mutex
	state Snapshot
	done  chan struct{} // closed when the current run releases the guard
}

// NewCoordinator creates a coordinator over the given task registry and
// result store.
func NewCoordinator(tasks *task.Registry, store Store, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, pricing.ErrNoStore
	}
	if tasks == nil {
		tasks = task.NewRegistry()
	}

	c := &Coordinator{
		store:    store,
		graph:    phase.Default(),
		config:   pricing.DefaultConfig(),
		logger:   slog.Default(),
		emitter:  nopEmitter{},
		tracer:   otel.Tracer(tracerName),
		horizons: DefaultForecastHorizons,
	}
	c.state.CurrentStatus = StatusIdle
	for _, opt := range opts {
		opt(c)
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	if err := c.graph.Validate(); err != nil {
		return nil, err
	}

	c.adapter = task.NewAdapter(tasks,
		task.WithInterceptor(c.interceptor),
		task.WithAdapterLogger(c.logger),
	)
	return c, nil
}

// Store returns the result store.
func (c *Coordinator) Store() Store { return c.store }

// Graph returns the phase graph.
func (c *Coordinator) Graph() *phase.Graph { return c.graph }

// Config returns the pipeline configuration.
func (c *Coordinator) Config() pricing.Config { return c.config }

// ──────────────────────────────────────────────────
// Guard
// ──────────────────────────────────────────────────

// acquire flips the guard from idle to running and builds the run record.
func (c *Coordinator) acquire(ctx context.Context, source TriggerSource, reason string) (*Run, error) {
	c.mu.Lock()
	if c.state.IsRunning {
		current := c.state.CurrentRunID
		c.mu.Unlock()

		c.logger.Info("run rejected, pipeline already running",
			slog.String("run_id", current.String()),
			slog.String("source", string(source)),
			slog.String("reason", reason),
		)
		c.emitter.EmitTriggerRejected(ctx, source, reason, current)
		return nil, &pricing.AlreadyRunningError{RunID: current}
	}

	r := NewRun(source, reason)
	started := r.StartedAt
	c.state.IsRunning = true
	c.state.CurrentRunID = r.ID
	c.state.CurrentPhase = ""
	c.state.CurrentStatus = StatusPending
	c.state.StartedAt = &started
	c.done = make(chan struct{})
	c.mu.Unlock()

	return r, nil
}

// release returns the guard to idle and records r as the last run.
func (c *Coordinator) release(r *Run) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.IsRunning = false
	c.state.CurrentRunID = id.Nil
	c.state.CurrentPhase = ""
	c.state.CurrentStatus = StatusIdle
	c.state.StartedAt = nil
	c.state.LastRunID = r.ID
	c.state.LastStatus = r.Status
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.state.LastCompletedAt = &t
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Coordinator) setPhase(ph phase.Name) {
	c.mu.Lock()
	c.state.CurrentPhase = ph
	c.mu.Unlock()
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.state.CurrentStatus = s
	c.mu.Unlock()
}

// Snapshot returns the current pipeline state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.LastCompletedAt != nil {
		t := *s.LastCompletedAt
		s.LastCompletedAt = &t
	}
	return s
}

// Running reports whether a run holds the guard.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsRunning
}

// Wait blocks until no run is in progress or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Entry points
// ──────────────────────────────────────────────────

// Start begins a run in the background and returns its ID without waiting
// for it. If a run is already in progress it returns an
// *pricing.AlreadyRunningError carrying the current run's ID; nothing is
// queued. The run is detached from ctx's cancellation.
func (c *Coordinator) Start(ctx context.Context, source TriggerSource, reason string) (id.RunID, error) {
	r, err := c.acquire(ctx, source, reason)
	if err != nil {
		return id.Nil, err
	}

	go c.execute(context.WithoutCancel(ctx), r)
	return r.ID, nil
}

// Execute runs the pipeline synchronously and returns the finished run.
// It shares the guard with Start.
func (c *Coordinator) Execute(ctx context.Context, source TriggerSource, reason string) (*Run, error) {
	r, err := c.acquire(ctx, source, reason)
	if err != nil {
		return nil, err
	}

	c.execute(ctx, r)
	return r.Clone(), nil
}

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

func (c *Coordinator) execute(ctx context.Context, r *Run) {
	rec := newRecorder(c.store, c.config.StoreWriteTimeout, c.logger, r.ID)

	ctx, span := c.tracer.Start(ctx, "pricing.run",
		trace.WithAttributes(
			attribute.String("pricing.run_id", r.ID.String()),
			attribute.String("pricing.trigger_source", string(r.TriggerSource)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	defer c.release(r)
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			if r.CompletedAt != nil {
				// The run was already finalized; the panic came from a
				// completion hook and must not rewrite the stored status.
				c.logger.Error("pipeline completion hook panicked",
					slog.String("run_id", r.ID.String()),
					slog.String("status", string(r.Status)),
					slog.Any("panic", p),
				)
			} else {
				c.logger.Error("pipeline run panicked",
					slog.String("run_id", r.ID.String()),
					slog.Any("panic", p),
				)
				r.Errors = append(r.Errors, RunError{
					Phase:   c.Snapshot().CurrentPhase,
					Message: fmt.Sprintf("panic: %v", p),
				})
				c.finish(ctx, rec, r, StatusFailed)
			}
		}
		if r.Status == StatusFailed {
			span.SetStatus(codes.Error, string(r.Status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.String("pricing.status", string(r.Status)))
	}()

	c.logger.Info("pipeline run started",
		slog.String("run_id", r.ID.String()),
		slog.String("source", string(r.TriggerSource)),
		slog.String("reason", r.Reason),
	)

	rec.create(ctx, r)

	r.Status = StatusRunning
	r.UpdatedAt = time.Now().UTC()
	c.setStatus(StatusRunning)
	rec.status(ctx, StatusRunning)
	c.emitter.EmitRunStarted(ctx, r)

	status := c.runPhases(ctx, rec, r)
	c.finish(ctx, rec, r, status)
}

// runPhases executes the graph phase by phase and returns the final
// status. A fatal phase stops the run; later phases are not started.
func (c *Coordinator) runPhases(ctx context.Context, rec *recorder, r *Run) Status {
	degraded := false

	for _, ph := range c.graph.Phases() {
		spec, _ := c.graph.Spec(ph)
		c.setPhase(ph)

		pr := c.runPhase(ctx, r, spec)
		r.PhaseResults = r.PhaseResults.Put(pr)
		r.UpdatedAt = time.Now().UTC()
		rec.phase(ctx, pr)

		succeeded := make(map[task.Name]bool, len(spec.Tasks))
		for _, tn := range spec.Tasks {
			o := pr.TaskOutcomes[tn]
			if o.OK() {
				succeeded[tn] = true
				c.emitter.EmitTaskCompleted(ctx, r, ph, o)
				continue
			}
			degraded = true
			r.Errors = append(r.Errors, RunError{Phase: ph, Task: tn, Message: o.Error})
			c.emitter.EmitTaskFailed(ctx, r, ph, o)
		}

		stored, _ := r.Phase(ph)
		c.emitter.EmitPhaseCompleted(ctx, r, stored)

		if c.graph.Fatal(ph, succeeded) {
			r.Errors = append(r.Errors, RunError{
				Phase:   ph,
				Message: fmt.Sprintf("phase %s failed (%s)", ph, spec.Criticality),
			})
			c.logger.Warn("pipeline phase fatal",
				slog.String("run_id", r.ID.String()),
				slog.String("phase", ph.String()),
			)
			return StatusFailed
		}
	}

	if degraded {
		return StatusPartial
	}
	return StatusSucceeded
}

// runPhase invokes every task of the phase concurrently and waits for all
// of them. Each task is bounded by its own timeout, so the phase always
// completes.
func (c *Coordinator) runPhase(ctx context.Context, r *Run, spec phase.Spec) PhaseResult {
	pr := PhaseResult{
		Phase:        spec.Name,
		StartedAt:    time.Now().UTC(),
		TaskOutcomes: make(map[task.Name]task.Outcome, len(spec.Tasks)),
	}

	outcomes := make([]task.Outcome, len(spec.Tasks))
	var g errgroup.Group
	for i, tn := range spec.Tasks {
		inv := task.Invocation{
			Task:    tn,
			Input:   c.inputFor(tn, r),
			Timeout: c.timeoutFor(tn),
			RunID:   r.ID,
			Phase:   spec.Name.String(),
		}
		g.Go(func() error {
			outcomes[i] = c.adapter.Execute(ctx, inv)
			return nil
		})
	}
	_ = g.Wait() // Execute never fails; outcomes carry the errors

	for _, o := range outcomes {
		pr.TaskOutcomes[o.Task] = o
	}
	pr.CompletedAt = time.Now().UTC()
	return pr
}

// finish stamps the terminal status, persists it and emits the final event.
// A non-nil r.CompletedAt marks the run as finalized.
func (c *Coordinator) finish(ctx context.Context, rec *recorder, r *Run, status Status) {
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.UpdatedAt = now
	c.setStatus(status)

	rec.finalize(ctx, r)

	elapsed := r.Elapsed()
	attrs := []any{
		slog.String("run_id", r.ID.String()),
		slog.String("status", string(status)),
		slog.Duration("elapsed", elapsed),
		slog.Int("errors", len(r.Errors)),
		slog.Int("store_failures", rec.failures),
	}

	switch status {
	case StatusSucceeded:
		c.logger.Info("pipeline run succeeded", attrs...)
		c.emitter.EmitRunSucceeded(ctx, r, elapsed)
	case StatusPartial:
		c.logger.Warn("pipeline run partially succeeded", attrs...)
		c.emitter.EmitRunPartial(ctx, r, elapsed)
	default:
		c.logger.Error("pipeline run failed", attrs...)
		c.emitter.EmitRunFailed(ctx, r, runError(r))
	}
}

// runError summarizes the errors of a failed run.
func runError(r *Run) error {
	if len(r.Errors) == 0 {
		return fmt.Errorf("run %s failed", r.ID)
	}
	last := r.Errors[len(r.Errors)-1]
	return fmt.Errorf("run %s failed in phase %s: %s", r.ID, last.Phase, last.Message)
}

// ──────────────────────────────────────────────────
// Task inputs
// ──────────────────────────────────────────────────

// inputFor builds the typed input of a task from the run so far. Missing
// upstream outputs are passed as nil.
func (c *Coordinator) inputFor(tn task.Name, r *Run) task.Input {
	switch tn {
	case task.Forecasting:
		return task.ForecastInput{HorizonDays: append([]int(nil), c.horizons...), AsOf: r.StartedAt}
	case task.Analysis:
		return task.RuleInput{AsOf: r.StartedAt}
	case task.Recommendation:
		in := task.RecommendationInput{}
		if o, ok := r.Outcome(task.Forecasting); ok && o.OK() {
			in.Forecast, _ = o.Output.(*task.ForecastResult)
		}
		if o, ok := r.Outcome(task.Analysis); ok && o.OK() {
			in.Rules, _ = o.Output.(*task.RuleSetResult)
		}
		return in
	case task.WhatIf:
		in := task.WhatIfInput{}
		if o, ok := r.Outcome(task.Recommendation); ok && o.OK() {
			in.Recommendation, _ = o.Output.(*task.RecommendationResult)
		}
		return in
	default:
		return nil
	}
}

// timeoutFor returns the configured timeout of a task.
func (c *Coordinator) timeoutFor(tn task.Name) time.Duration {
	switch tn {
	case task.Forecasting:
		return c.config.ForecastTimeout
	case task.Analysis:
		return c.config.RuleGenerationTimeout
	case task.Recommendation:
		return c.config.RecommendationTimeout
	case task.WhatIf:
		return c.config.WhatIfTimeout
	default:
		return task.DefaultTimeout
	}
}

package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/engine"
	"github.com/shivramiyer22/rideshare-sub001/gateway"
	mw "github.com/shivramiyer22/rideshare-sub001/middleware"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/store/memory"
	"github.com/shivramiyer22/rideshare-sub001/task"
	"github.com/shivramiyer22/rideshare-sub001/watcher"
)

// ──────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────

func newTasks() *task.Registry {
	reg := task.NewRegistry()
	task.RegisterTyped(reg, task.Forecasting, func(context.Context, task.ForecastInput) (*task.ForecastResult, error) {
		return &task.ForecastResult{}, nil
	})
	task.RegisterTyped(reg, task.Analysis, func(context.Context, task.RuleInput) (*task.RuleSetResult, error) {
		return &task.RuleSetResult{}, nil
	})
	task.RegisterTyped(reg, task.Recommendation, func(context.Context, task.RecommendationInput) (*task.RecommendationResult, error) {
		return &task.RecommendationResult{}, nil
	})
	task.RegisterTyped(reg, task.WhatIf, func(context.Context, task.WhatIfInput) (*task.WhatIfResult, error) {
		return &task.WhatIfResult{}, nil
	})
	return reg
}

// lifecycleRecorder records terminal runs and shutdown notifications.
type lifecycleRecorder struct {
	mu        sync.Mutex
	succeeded []*pipeline.Run
	shutdown  atomic.Bool
}

func (r *lifecycleRecorder) Name() string { return "lifecycle-recorder" }

func (r *lifecycleRecorder) OnRunSucceeded(_ context.Context, run *pipeline.Run, _ time.Duration) error {
	r.mu.Lock()
	r.succeeded = append(r.succeeded, run)
	r.mu.Unlock()
	return nil
}

func (r *lifecycleRecorder) OnShutdown(context.Context) error {
	r.shutdown.Store(true)
	return nil
}

func (r *lifecycleRecorder) runs() []*pipeline.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*pipeline.Run(nil), r.succeeded...)
}

// chanSource is a change source fed from a channel.
type chanSource struct {
	changes chan watcher.Change
}

func (s *chanSource) Watch(ctx context.Context, fn func(watcher.Change)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-s.changes:
			fn(c)
		}
	}
}

func noSchedule() pricing.Config {
	cfg := pricing.DefaultConfig()
	cfg.Schedule = ""
	return cfg
}

func waitIdle(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Coordinator().Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Build
// ──────────────────────────────────────────────────

func TestBuild_NoStore(t *testing.T) {
	if _, err := engine.Build(newTasks(), nil); !errors.Is(err, pricing.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.ForecastTimeout = 0
	if _, err := engine.Build(newTasks(), memory.New(), engine.WithConfig(cfg)); !errors.Is(err, pricing.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestBuild_InvalidSchedule(t *testing.T) {
	cfg := pricing.DefaultConfig()
	cfg.Schedule = "every so often"
	if _, err := engine.Build(newTasks(), memory.New(), engine.WithConfig(cfg)); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestBuild_OptionalTriggerSources(t *testing.T) {
	eng, err := engine.Build(newTasks(), memory.New(), engine.WithConfig(noSchedule()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if eng.Scheduler() != nil {
		t.Error("scheduler built with empty schedule")
	}
	if eng.Watcher() != nil {
		t.Error("watcher built without change source")
	}

	eng, err = engine.Build(newTasks(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if eng.Scheduler() == nil || eng.Scheduler().Schedule() != pricing.DefaultConfig().Schedule {
		t.Error("default schedule not wired")
	}
}

// ──────────────────────────────────────────────────
// End-to-end
// ──────────────────────────────────────────────────

func TestEngine_ManualTriggerRunsPipeline(t *testing.T) {
	store := memory.New()
	rec := &lifecycleRecorder{}
	var invocations atomic.Int64
	counting := func(ctx context.Context, _ *task.Invocation, next mw.Handler) error {
		invocations.Add(1)
		return next(ctx)
	}

	eng, err := engine.Build(newTasks(), store,
		engine.WithConfig(noSchedule()),
		engine.WithExtension(rec),
		engine.WithMiddleware(counting),
		engine.WithMetricFactory(gu.NewMetricsCollector("test")),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	resp, err := eng.Gateway().Trigger(context.Background(), gateway.Request{Reason: "manual"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if resp.Status != gateway.StatusAccepted {
		t.Fatalf("status = %s, want accepted", resp.Status)
	}
	waitIdle(t, eng)

	run, err := store.GetRun(context.Background(), resp.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != pipeline.StatusSucceeded {
		t.Errorf("run status = %s, want SUCCEEDED", run.Status)
	}
	if got := invocations.Load(); got != 4 {
		t.Errorf("middleware invocations = %d, want 4", got)
	}
	if runs := rec.runs(); len(runs) != 1 || runs[0].ID != resp.RunID {
		t.Errorf("succeeded hooks = %d", len(runs))
	}
	// The observability extension is registered ahead of user extensions.
	if exts := eng.Extensions().Extensions(); len(exts) != 2 || exts[0].Name() != "observability-metrics" {
		t.Errorf("extensions = %d", len(exts))
	}
}

func TestEngine_ChangeSourceTriggersRun(t *testing.T) {
	store := memory.New()
	cfg := noSchedule()
	cfg.ChangeTriggerRate = 0
	src := &chanSource{changes: make(chan watcher.Change, 1)}

	eng, err := engine.Build(newTasks(), store,
		engine.WithConfig(cfg),
		engine.WithChangeSource(src, watcher.WithDebounce(0)),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	src.changes <- watcher.Change{Collection: "rides", OperationType: "insert", ObservedAt: time.Now()}

	deadline := time.Now().Add(5 * time.Second)
	for eng.Watcher().Stats().Accepted == 0 {
		if time.Now().After(deadline) {
			t.Fatal("change did not trigger a run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitIdle(t, eng)

	latest, err := store.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.TriggerSource != pipeline.SourceChangeStream {
		t.Errorf("trigger source = %s, want CHANGE_STREAM", latest.TriggerSource)
	}
}

func TestEngine_TracerProvider(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	eng, err := engine.Build(newTasks(), memory.New(),
		engine.WithConfig(noSchedule()),
		engine.WithTracerProvider(tp),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := eng.Coordinator().Execute(context.Background(), pipeline.SourceManual, "manual"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// One run span plus one span per task.
	if got := len(sr.Ended()); got < 5 {
		t.Errorf("ended spans = %d, want at least 5", got)
	}
}

func TestEngine_StartStop(t *testing.T) {
	rec := &lifecycleRecorder{}
	eng, err := engine.Build(newTasks(), memory.New(), engine.WithExtension(rec))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if eng.Scheduler().NextRun().IsZero() {
		t.Error("scheduler not running after Start")
	}
	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !eng.Scheduler().NextRun().IsZero() {
		t.Error("scheduler still running after Stop")
	}
	if !rec.shutdown.Load() {
		t.Error("shutdown hook not called")
	}
}

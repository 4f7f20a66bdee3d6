package engine

import (
	"context"
	"fmt"
	"log/slog"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/cron"
	"github.com/shivramiyer22/rideshare-sub001/ext"
	"github.com/shivramiyer22/rideshare-sub001/gateway"
	mw "github.com/shivramiyer22/rideshare-sub001/middleware"
	"github.com/shivramiyer22/rideshare-sub001/observability"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
	"github.com/shivramiyer22/rideshare-sub001/watcher"
)

// instrumentationName is the OpenTelemetry scope used with custom providers.
const instrumentationName = "github.com/shivramiyer22/rideshare-sub001"

// Engine holds the assembled pipeline.
// Use Build() to create one.
type Engine struct {
	config     pricing.Config
	logger     *slog.Logger
	store      pipeline.Store
	tasks      *task.Registry
	extensions *ext.Registry
	exts       []ext.Extension
	mws        []mw.Middleware
	graph      *phase.Graph

	coordinator *pipeline.Coordinator
	gateway     *gateway.Gateway
	scheduler   *cron.Scheduler
	watcher     *watcher.Watcher

	source      watcher.ChangeSource
	watcherOpts []watcher.Option

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricFactory  gu.MetricFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.exts = append(eng.exts, e)
	}
}

// WithMiddleware adds middleware to the task invocation chain. User
// middleware runs inside the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithConfig sets the pipeline configuration.
func WithConfig(cfg pricing.Config) Option {
	return func(eng *Engine) {
		eng.config = cfg
	}
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = l
	}
}

// WithGraph replaces the phase graph.
func WithGraph(g *phase.Graph) Option {
	return func(eng *Engine) {
		eng.graph = g
	}
}

// WithChangeSource enables the ingestion watcher over src. Without it no
// change-stream triggers are produced.
func WithChangeSource(src watcher.ChangeSource, opts ...watcher.Option) Option {
	return func(eng *Engine) {
		eng.source = src
		eng.watcherOpts = append(eng.watcherOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware and run spans use this provider instead
// of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithMetricFactory sets the go-utils factory backing the lifecycle
// counters of the observability extension.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) {
		eng.metricFactory = f
	}
}

// Build assembles an Engine over a task registry and a result store.
func Build(tasks *task.Registry, store pipeline.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, pricing.ErrNoStore
	}

	eng := &Engine{
		config: pricing.DefaultConfig(),
		logger: slog.Default(),
		store:  store,
		tasks:  tasks,
	}

	for _, opt := range opts {
		opt(eng)
	}
	if eng.tasks == nil {
		eng.tasks = task.NewRegistry()
	}

	if err := eng.config.Validate(); err != nil {
		return nil, err
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	coordOpts := []pipeline.Option{}
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer(instrumentationName)
		tracingMw = mw.TracingWithTracer(tracer)
		coordOpts = append(coordOpts, pipeline.WithTracer(tracer))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.metricFactory != nil {
		obsExt = observability.NewMetricsExtensionWithFactory(eng.metricFactory)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions = ext.NewRegistry(eng.logger)
	eng.extensions.Register(obsExt)
	for _, x := range eng.exts {
		eng.extensions.Register(x)
	}

	// Default middleware stack: logging → recover → tracing → metrics → user.
	chain := make([]mw.Middleware, 0, 4+len(eng.mws))
	chain = append(chain, mw.Logging(eng.logger), mw.Recover(eng.logger), tracingMw, metricsMw)
	chain = append(chain, eng.mws...)

	coordOpts = append(coordOpts,
		pipeline.WithLogger(eng.logger),
		pipeline.WithConfig(eng.config),
		pipeline.WithEmitter(eng.extensions),
		pipeline.WithInterceptor(mw.Chain(chain...)),
	)
	if eng.graph != nil {
		coordOpts = append(coordOpts, pipeline.WithGraph(eng.graph))
	}

	coord, err := pipeline.NewCoordinator(eng.tasks, store, coordOpts...)
	if err != nil {
		return nil, fmt.Errorf("pricing/engine: build coordinator: %w", err)
	}
	eng.coordinator = coord

	eng.gateway = gateway.New(coord, store,
		gateway.WithConfig(eng.config),
		gateway.WithLogger(eng.logger),
	)

	// Scheduled trigger, disabled by an empty schedule.
	if eng.config.Schedule != "" {
		eng.scheduler, err = cron.NewScheduler(eng.config.Schedule, eng.gateway.Trigger,
			cron.WithEmitter(eng.extensions),
			cron.WithLogger(eng.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("pricing/engine: build scheduler: %w", err)
		}
	}

	// Ingestion watcher, enabled by a change source.
	if eng.source != nil {
		wopts := make([]watcher.Option, 0, 2+len(eng.watcherOpts))
		wopts = append(wopts, watcher.WithLogger(eng.logger), watcher.WithEmitter(eng.extensions))
		wopts = append(wopts, eng.watcherOpts...)
		eng.watcher = watcher.New(eng.source, eng.gateway.Trigger, wopts...)
	}

	return eng, nil
}

// Start launches the automatic trigger sources. Manual triggers work
// through Gateway() without calling Start.
func (eng *Engine) Start(ctx context.Context) error {
	if eng.scheduler != nil {
		if err := eng.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		eng.logger.Info("pricing scheduler started",
			slog.String("schedule", eng.scheduler.Schedule()),
			slog.Time("next_run", eng.scheduler.NextRun()),
		)
	}

	if eng.watcher != nil {
		if err := eng.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
	}

	return nil
}

// Stop halts the trigger sources, waits for the run in progress to finish
// or ctx to expire, and notifies extensions of the shutdown.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.watcher != nil {
		if err := eng.watcher.Stop(ctx); err != nil {
			eng.logger.Error("watcher stop error", slog.String("error", err.Error()))
		}
	}

	if eng.scheduler != nil {
		if err := eng.scheduler.Stop(ctx); err != nil {
			eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		}
	}

	err := eng.coordinator.Wait(ctx)
	if err != nil {
		eng.logger.Warn("run still in progress at shutdown",
			slog.String("run_id", eng.coordinator.Snapshot().CurrentRunID.String()),
		)
	}

	eng.extensions.EmitShutdown(ctx)
	return err
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Tasks returns the task registry.
func (eng *Engine) Tasks() *task.Registry { return eng.tasks }

// Store returns the result store.
func (eng *Engine) Store() pipeline.Store { return eng.store }

// Config returns the pipeline configuration.
func (eng *Engine) Config() pricing.Config { return eng.config }

// Logger returns the engine logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Coordinator returns the run coordinator.
func (eng *Engine) Coordinator() *pipeline.Coordinator { return eng.coordinator }

// Gateway returns the trigger gateway.
func (eng *Engine) Gateway() *gateway.Gateway { return eng.gateway }

// Scheduler returns the cron scheduler, or nil when no schedule is
// configured.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Watcher returns the ingestion watcher, or nil when no change source was
// given.
func (eng *Engine) Watcher() *watcher.Watcher { return eng.watcher }

// Package engine wires the pricing subsystems together and provides the
// application-level entry point for running the pipeline.
//
// The engine package exists to break an import cycle: pipeline defines the
// Emitter interface that ext implements against pipeline types, while cron
// and watcher drive the gateway that sits on top of the coordinator. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	tasks := task.NewRegistry()
//	forecaster.Register(tasks, task.Forecasting)
//
//	eng, err := engine.Build(tasks, memory.New(),
//	    engine.WithConfig(cfg),
//	    engine.WithExtension(audithook.New(recorder)),
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithChangeSource(watcher.NewMongoSource(db)),
//	)
//
// # Triggering Runs
//
//	resp, err := eng.Gateway().Trigger(ctx, gateway.Request{Reason: "manual"})
//
// Start launches the cron scheduler (when Config.Schedule is set) and the
// ingestion watcher (when a change source is given). Stop halts both and
// waits for the run in progress.
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the task invocation chain
//   - [WithConfig]: set the pipeline configuration
//   - [WithChangeSource]: enable change-stream triggers
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
//   - [WithMetricFactory]: set the lifecycle metrics factory
package engine

// Package ext defines the extension system for the pricing pipeline.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, emitting webhooks, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnRunPartial(ctx context.Context, r *pipeline.Run, elapsed time.Duration) error {
//	    log.Printf("run %s degraded after %s", r.ID, elapsed)
//	    return nil
//	}
//
// # Run Lifecycle Hooks
//
//   - [RunStarted]: run acquired the guard and began executing
//   - [RunSucceeded]: every task returned OK
//   - [RunPartial]: recommendations produced, some task failed
//   - [RunFailed]: a load-bearing phase failed
//
// # Phase and Task Hooks
//
//   - [TaskCompleted]: a task returned OK
//   - [TaskFailed]: a task returned ERROR or TIMEOUT
//   - [PhaseCompleted]: every task of a phase resolved
//
// # Other Hooks
//
//   - [TriggerRejected]: a trigger arrived while a run was in progress
//   - [ScheduleFired]: the periodic schedule started a run
//   - [ChangeDetected]: the change watcher saw new ingestion data
//   - [Shutdown]: the service is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. It implements
// pipeline.Emitter so it can be handed straight to the coordinator.
package ext

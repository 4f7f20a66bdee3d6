// Package audithook is a pricing extension that bridges pipeline lifecycle
// events to an immutable audit trail backend such as Chronicle.
//
// Every run, task and trigger hook emits a structured audit event through
// the [Recorder] interface. The extension assigns severity levels (info for
// normal operations, warning for degraded runs and task failures, critical
// for failed runs) and metadata such as trigger source, phase and elapsed
// time.
//
// # Usage with Chronicle
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return chronicle.Info(ctx, evt.Action, evt.Resource, evt.ResourceID).
//	        Category(evt.Category).
//	        Outcome(evt.Outcome).
//	        Record()
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionRunPartial,
//	        audithook.ActionRunFailed,
//	    ),
//	)
package audithook

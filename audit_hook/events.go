package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionRunStarted      = "run.started"
	ActionRunSucceeded    = "run.succeeded"
	ActionRunPartial      = "run.partial"
	ActionRunFailed       = "run.failed"
	ActionTaskCompleted   = "task.completed"
	ActionTaskFailed      = "task.failed"
	ActionPhaseCompleted  = "phase.completed"
	ActionTriggerRejected = "trigger.rejected"
	ActionScheduleFired   = "schedule.fired"
	ActionChangeDetected  = "change.detected"
)

// Audit event categories group related actions.
const (
	CategoryRun     = "pricing.run"
	CategoryTask    = "pricing.task"
	CategoryTrigger = "pricing.trigger"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceRun        = "pipeline_run"
	ResourceSchedule   = "schedule"
	ResourceCollection = "collection"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunSucceeded,
		ActionRunPartial,
		ActionRunFailed,
		ActionTaskCompleted,
		ActionTaskFailed,
		ActionPhaseCompleted,
		ActionTriggerRejected,
		ActionScheduleFired,
		ActionChangeDetected,
	}
}

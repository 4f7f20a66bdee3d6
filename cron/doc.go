// Package cron fires the pricing pipeline on a recurring schedule.
//
// The schedule is a standard 5-field cron expression (e.g. "0 * * * *") or
// a descriptor such as "@hourly" or "@every 1h". On every due tick the
// [Scheduler] calls its [TriggerFunc] with reason "scheduled"; the trigger
// gateway decides whether a run actually starts. A tick that lands while a
// run is in progress is logged and skipped, never queued.
//
// The ext.ScheduleFired hook fires after each accepted scheduled trigger.
package cron

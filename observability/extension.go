package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/shivramiyer22/rideshare-sub001/ext"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.RunStarted      = (*MetricsExtension)(nil)
	_ ext.RunSucceeded    = (*MetricsExtension)(nil)
	_ ext.RunPartial      = (*MetricsExtension)(nil)
	_ ext.RunFailed       = (*MetricsExtension)(nil)
	_ ext.TaskCompleted   = (*MetricsExtension)(nil)
	_ ext.TaskFailed      = (*MetricsExtension)(nil)
	_ ext.TriggerRejected = (*MetricsExtension)(nil)
	_ ext.ScheduleFired   = (*MetricsExtension)(nil)
	_ ext.ChangeDetected  = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide pipeline counters via a go-utils
// MetricFactory. Register it as a pricing extension to track run
// throughput, terminal statuses, task failures and timeouts, rejected
// triggers, schedule fires and ingestion changes.
type MetricsExtension struct {
	RunStarted      gu.Counter
	RunSucceeded    gu.Counter
	RunPartial      gu.Counter
	RunFailed       gu.Counter
	TaskCompleted   gu.Counter
	TaskFailed      gu.Counter
	TaskTimedOut    gu.Counter
	TriggerRejected gu.Counter
	ScheduleFired   gu.Counter
	ChangeDetected  gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("pricing/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
// Use fapp.Metrics() in forge extensions, or gu.NewMetricsCollector for testing.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		RunStarted:      factory.Counter("pricing.run.started"),
		RunSucceeded:    factory.Counter("pricing.run.succeeded"),
		RunPartial:      factory.Counter("pricing.run.partial"),
		RunFailed:       factory.Counter("pricing.run.failed"),
		TaskCompleted:   factory.Counter("pricing.task.completed"),
		TaskFailed:      factory.Counter("pricing.task.failed"),
		TaskTimedOut:    factory.Counter("pricing.task.timed_out"),
		TriggerRejected: factory.Counter("pricing.trigger.rejected"),
		ScheduleFired:   factory.Counter("pricing.schedule.fired"),
		ChangeDetected:  factory.Counter("pricing.change.detected"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(_ context.Context, _ *pipeline.Run) error {
	m.RunStarted.Inc()
	return nil
}

// OnRunSucceeded implements ext.RunSucceeded.
func (m *MetricsExtension) OnRunSucceeded(_ context.Context, _ *pipeline.Run, _ time.Duration) error {
	m.RunSucceeded.Inc()
	return nil
}

// OnRunPartial implements ext.RunPartial.
func (m *MetricsExtension) OnRunPartial(_ context.Context, _ *pipeline.Run, _ time.Duration) error {
	m.RunPartial.Inc()
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(_ context.Context, _ *pipeline.Run, _ error) error {
	m.RunFailed.Inc()
	return nil
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskCompleted implements ext.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(_ context.Context, _ *pipeline.Run, _ phase.Name, _ task.Outcome) error {
	m.TaskCompleted.Inc()
	return nil
}

// OnTaskFailed implements ext.TaskFailed. Timeouts are counted separately
// from other failures.
func (m *MetricsExtension) OnTaskFailed(_ context.Context, _ *pipeline.Run, _ phase.Name, o task.Outcome) error {
	if o.Status == task.StatusTimeout {
		m.TaskTimedOut.Inc()
		return nil
	}
	m.TaskFailed.Inc()
	return nil
}

// ── Trigger hooks ───────────────────────────────────

// OnTriggerRejected implements ext.TriggerRejected.
func (m *MetricsExtension) OnTriggerRejected(_ context.Context, _ pipeline.TriggerSource, _ string, _ id.RunID) error {
	m.TriggerRejected.Inc()
	return nil
}

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(_ context.Context, _ string, _ id.RunID) error {
	m.ScheduleFired.Inc()
	return nil
}

// OnChangeDetected implements ext.ChangeDetected.
func (m *MetricsExtension) OnChangeDetected(_ context.Context, _ string) error {
	m.ChangeDetected.Inc()
	return nil
}

package pipeline

import (
	"context"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Emitter receives run lifecycle events from the coordinator. The ext
// package's Registry implements it. Events are delivered synchronously on
// the run's goroutine; receivers must not retain or mutate the run.
type Emitter interface {
	EmitRunStarted(ctx context.Context, r *Run)
	EmitTaskCompleted(ctx context.Context, r *Run, ph phase.Name, o task.Outcome)
	EmitTaskFailed(ctx context.Context, r *Run, ph phase.Name, o task.Outcome)
	EmitPhaseCompleted(ctx context.Context, r *Run, pr *PhaseResult)
	EmitRunSucceeded(ctx context.Context, r *Run, elapsed time.Duration)
	EmitRunPartial(ctx context.Context, r *Run, elapsed time.Duration)
	EmitRunFailed(ctx context.Context, r *Run, err error)
	EmitTriggerRejected(ctx context.Context, source TriggerSource, reason string, current id.RunID)
}

type nopEmitter struct{}

func (nopEmitter) EmitRunStarted(context.Context, *Run)                                 {}
func (nopEmitter) EmitTaskCompleted(context.Context, *Run, phase.Name, task.Outcome)    {}
func (nopEmitter) EmitTaskFailed(context.Context, *Run, phase.Name, task.Outcome)       {}
func (nopEmitter) EmitPhaseCompleted(context.Context, *Run, *PhaseResult)               {}
func (nopEmitter) EmitRunSucceeded(context.Context, *Run, time.Duration)                {}
func (nopEmitter) EmitRunPartial(context.Context, *Run, time.Duration)                  {}
func (nopEmitter) EmitRunFailed(context.Context, *Run, error)                           {}
func (nopEmitter) EmitTriggerRejected(context.Context, TriggerSource, string, id.RunID) {}

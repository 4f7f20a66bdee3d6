package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// ── Run model ─────────────────────────────────────────────────────

// runModel is the stored run document. Phase results live in a
// sub-document keyed by phase name; phase_order keeps execution order.
type runModel struct {
	grove.BaseModel `grove:"table:pipeline_runs"`

	ID            string                `grove:"id,pk"                  bson:"_id"`
	TriggerSource string                `grove:"trigger_source,notnull" bson:"trigger_source"`
	Reason        string                `grove:"reason"                 bson:"reason"`
	Status        string                `grove:"status,notnull"         bson:"status"`
	StartedAt     time.Time             `grove:"started_at,notnull"     bson:"started_at"`
	CompletedAt   *time.Time            `grove:"completed_at"           bson:"completed_at,omitempty"`
	PhaseOrder    []string              `grove:"phase_order"            bson:"phase_order"`
	PhaseResults  map[string]phaseModel `grove:"phase_results"          bson:"phase_results"`
	Errors        []runErrorModel       `grove:"errors"                 bson:"errors"`
	CreatedAt     time.Time             `grove:"created_at,notnull"     bson:"created_at"`
	UpdatedAt     time.Time             `grove:"updated_at,notnull"     bson:"updated_at"`
}

type phaseModel struct {
	Phase        string                  `bson:"phase_name"`
	StartedAt    time.Time               `bson:"started_at"`
	CompletedAt  time.Time               `bson:"completed_at"`
	TaskOutcomes map[string]outcomeModel `bson:"task_outcomes"`
}

type outcomeModel struct {
	Task        string    `bson:"task"`
	Status      string    `bson:"status"`
	Error       string    `bson:"error_message,omitempty"`
	StartedAt   time.Time `bson:"started_at"`
	CompletedAt time.Time `bson:"completed_at"`
	DurationMS  int64     `bson:"duration_ms"`
	Output      bson.D    `bson:"output,omitempty"`
}

type runErrorModel struct {
	Phase   string `bson:"phase"`
	Task    string `bson:"task,omitempty"`
	Message string `bson:"message"`
}

func toRunModel(r *pipeline.Run) (*runModel, error) {
	m := &runModel{
		ID:            r.ID.String(),
		TriggerSource: string(r.TriggerSource),
		Reason:        r.Reason,
		Status:        string(r.Status),
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		PhaseOrder:    make([]string, 0, len(r.PhaseResults)),
		PhaseResults:  make(map[string]phaseModel, len(r.PhaseResults)),
		Errors:        toErrorModels(r.Errors),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, pr := range r.PhaseResults {
		pm, err := toPhaseModel(pr)
		if err != nil {
			return nil, err
		}
		m.PhaseOrder = append(m.PhaseOrder, pm.Phase)
		m.PhaseResults[pm.Phase] = pm
	}
	return m, nil
}

func fromRunModel(m *runModel) (*pipeline.Run, error) {
	runID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse run ID: %w", err)
	}
	r := &pipeline.Run{
		ID:            runID,
		TriggerSource: pipeline.TriggerSource(m.TriggerSource),
		Reason:        m.Reason,
		Status:        pipeline.Status(m.Status),
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		PhaseResults:  make(pipeline.PhaseResults, 0, len(m.PhaseOrder)),
		Errors:        fromErrorModels(m.Errors),
	}
	r.CreatedAt = m.CreatedAt
	r.UpdatedAt = m.UpdatedAt

	for _, name := range m.PhaseOrder {
		pm, ok := m.PhaseResults[name]
		if !ok {
			continue
		}
		pr, convErr := fromPhaseModel(pm)
		if convErr != nil {
			return nil, convErr
		}
		r.PhaseResults = append(r.PhaseResults, pr)
	}
	return r, nil
}

// ── Phase model ───────────────────────────────────────────────────

func toPhaseModel(pr pipeline.PhaseResult) (phaseModel, error) {
	pm := phaseModel{
		Phase:        string(pr.Phase),
		StartedAt:    pr.StartedAt,
		CompletedAt:  pr.CompletedAt,
		TaskOutcomes: make(map[string]outcomeModel, len(pr.TaskOutcomes)),
	}
	for name, o := range pr.TaskOutcomes {
		om := outcomeModel{
			Task:        string(o.Task),
			Status:      string(o.Status),
			Error:       o.Error,
			StartedAt:   o.StartedAt,
			CompletedAt: o.CompletedAt,
			DurationMS:  o.Duration.Milliseconds(),
		}
		if o.Output != nil {
			doc, err := payloadToDoc(o.Output)
			if err != nil {
				return phaseModel{}, fmt.Errorf("encode %s output: %w", name, err)
			}
			om.Output = doc
		}
		pm.TaskOutcomes[string(name)] = om
	}
	return pm, nil
}

func fromPhaseModel(pm phaseModel) (pipeline.PhaseResult, error) {
	pr := pipeline.PhaseResult{
		Phase:        phase.Name(pm.Phase),
		StartedAt:    pm.StartedAt,
		CompletedAt:  pm.CompletedAt,
		TaskOutcomes: make(map[task.Name]task.Outcome, len(pm.TaskOutcomes)),
	}
	for name, om := range pm.TaskOutcomes {
		o := task.Outcome{
			Task:        task.Name(om.Task),
			Status:      task.Status(om.Status),
			Error:       om.Error,
			StartedAt:   om.StartedAt,
			CompletedAt: om.CompletedAt,
			Duration:    time.Duration(om.DurationMS) * time.Millisecond,
		}
		if len(om.Output) > 0 {
			p, err := docToPayload(om.Output)
			if err != nil {
				return pipeline.PhaseResult{}, fmt.Errorf("decode %s output: %w", name, err)
			}
			o.Output = p
		}
		pr.TaskOutcomes[task.Name(name)] = o
	}
	return pr, nil
}

// payloadToDoc stores a payload's JSON envelope as a native document so
// outputs stay queryable.
func payloadToDoc(p task.Payload) (bson.D, error) {
	data, err := task.MarshalPayload(p)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func docToPayload(doc bson.D) (task.Payload, error) {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, err
	}
	return task.UnmarshalPayload(data)
}

// ── Errors ────────────────────────────────────────────────────────

func toErrorModels(errs []pipeline.RunError) []runErrorModel {
	out := make([]runErrorModel, len(errs))
	for i, e := range errs {
		out[i] = runErrorModel{Phase: string(e.Phase), Task: string(e.Task), Message: e.Message}
	}
	return out
}

func fromErrorModels(ms []runErrorModel) []pipeline.RunError {
	out := make([]pipeline.RunError, len(ms))
	for i, m := range ms {
		out[i] = pipeline.RunError{Phase: phase.Name(m.Phase), Task: task.Name(m.Task), Message: m.Message}
	}
	return out
}

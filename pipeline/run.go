package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/phase"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// TriggerSource identifies what asked for a run.
type TriggerSource string

const (
	// SourceManual is an operator or API request.
	SourceManual TriggerSource = "MANUAL"
	// SourceChangeStream is a change detected on the ingestion collections.
	SourceChangeStream TriggerSource = "CHANGE_STREAM"
	// SourceScheduled is a periodic schedule tick.
	SourceScheduled TriggerSource = "SCHEDULED"
)

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusPending means the run record exists but execution has not begun.
	StatusPending Status = "PENDING"
	// StatusRunning means the run holds the pipeline guard.
	StatusRunning Status = "RUNNING"
	// StatusSucceeded means every task in every phase returned OK.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusPartial means recommendations were produced but an optional
	// task, or one of the signal tasks, failed.
	StatusPartial Status = "PARTIAL"
	// StatusFailed means a load-bearing phase failed.
	StatusFailed Status = "FAILED"

	// StatusIdle is reported by Snapshot when no run holds the guard. It
	// is never stored on a run.
	StatusIdle Status = "IDLE"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusPartial || s == StatusFailed
}

// RunError records one task or phase failure within a run.
type RunError struct {
	Phase   phase.Name `json:"phase"`
	Task    task.Name  `json:"task,omitempty"`
	Message string     `json:"message"`
}

// PhaseResult holds the outcomes of every task of one phase.
type PhaseResult struct {
	Phase        phase.Name                 `json:"phase_name"`
	StartedAt    time.Time                  `json:"started_at"`
	CompletedAt  time.Time                  `json:"completed_at"`
	TaskOutcomes map[task.Name]task.Outcome `json:"task_outcomes"`
}

// Outcome returns the outcome of the named task.
func (p *PhaseResult) Outcome(t task.Name) (task.Outcome, bool) {
	o, ok := p.TaskOutcomes[t]
	return o, ok
}

// Clone returns a copy with its own outcome map. Payloads are shared; they
// are never mutated after a task returns.
func (p PhaseResult) Clone() PhaseResult {
	outcomes := make(map[task.Name]task.Outcome, len(p.TaskOutcomes))
	for k, v := range p.TaskOutcomes {
		outcomes[k] = v
	}
	p.TaskOutcomes = outcomes
	return p
}

// PhaseResults is the ordered list of phase results of a run. It encodes
// as a JSON object keyed by phase name, in execution order.
type PhaseResults []PhaseResult

// Get returns the result of the named phase.
func (ps PhaseResults) Get(name phase.Name) (*PhaseResult, bool) {
	for i := range ps {
		if ps[i].Phase == name {
			return &ps[i], true
		}
	}
	return nil, false
}

// Put replaces the result of pr.Phase, or appends it when absent.
// Writing the same phase result twice leaves the list unchanged.
func (ps PhaseResults) Put(pr PhaseResult) PhaseResults {
	for i := range ps {
		if ps[i].Phase == pr.Phase {
			ps[i] = pr
			return ps
		}
	}
	return append(ps, pr)
}

// MarshalJSON encodes the results as an object whose keys follow
// execution order.
func (ps PhaseResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pr := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(pr.Phase))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(pr)
		if err != nil {
			return nil, fmt.Errorf("marshal phase %s: %w", pr.Phase, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of phase results, keeping key order.
func (ps *PhaseResults) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ps = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("phase results: expected object, got %v", tok)
	}
	out := PhaseResults{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("phase results: expected key, got %v", keyTok)
		}
		var pr PhaseResult
		if err := dec.Decode(&pr); err != nil {
			return fmt.Errorf("phase results: decode %s: %w", key, err)
		}
		if pr.Phase == "" {
			pr.Phase = phase.Name(key)
		}
		out = append(out, pr)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*ps = out
	return nil
}

// Run is one end-to-end execution of the pipeline.
type Run struct {
	pricing.Entity

	ID            id.RunID      `json:"run_id"`
	TriggerSource TriggerSource `json:"trigger_source"`
	Reason        string        `json:"reason,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Status        Status        `json:"status"`
	PhaseResults  PhaseResults  `json:"phase_results"`
	Errors        []RunError    `json:"errors"`
}

// NewRun creates a PENDING run.
func NewRun(source TriggerSource, reason string) *Run {
	now := time.Now().UTC()
	return &Run{
		Entity:        pricing.NewEntity(),
		ID:            id.NewRunID(),
		TriggerSource: source,
		Reason:        reason,
		StartedAt:     now,
		Status:        StatusPending,
		PhaseResults:  PhaseResults{},
		Errors:        []RunError{},
	}
}

// Phase returns the result of the named phase.
func (r *Run) Phase(name phase.Name) (*PhaseResult, bool) {
	return r.PhaseResults.Get(name)
}

// Outcome returns the outcome of the named task in any phase.
func (r *Run) Outcome(t task.Name) (task.Outcome, bool) {
	for i := range r.PhaseResults {
		if o, ok := r.PhaseResults[i].TaskOutcomes[t]; ok {
			return o, true
		}
	}
	return task.Outcome{}, false
}

// Elapsed returns the run duration, or the time since start while running.
func (r *Run) Elapsed() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	c.PhaseResults = make(PhaseResults, len(r.PhaseResults))
	for i, pr := range r.PhaseResults {
		c.PhaseResults[i] = pr.Clone()
	}
	c.Errors = append([]RunError{}, r.Errors...)
	return &c
}

// Summary is the compact form of a run used by history listings.
type Summary struct {
	RunID         id.RunID      `json:"run_id"`
	TriggerSource TriggerSource `json:"trigger_source"`
	Reason        string        `json:"reason,omitempty"`
	Status        Status        `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	DurationMS    int64         `json:"duration_ms"`
	Phases        []phase.Name  `json:"phases"`
	ErrorCount    int           `json:"error_count"`
}

// Summarize returns the compact form of the run.
func (r *Run) Summarize() Summary {
	phases := make([]phase.Name, len(r.PhaseResults))
	for i, pr := range r.PhaseResults {
		phases[i] = pr.Phase
	}
	return Summary{
		RunID:         r.ID,
		TriggerSource: r.TriggerSource,
		Reason:        r.Reason,
		Status:        r.Status,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		DurationMS:    r.Elapsed().Milliseconds(),
		Phases:        phases,
		ErrorCount:    len(r.Errors),
	}
}

package task

import (
	"encoding/json"
	"time"
)

// Status is the terminal state of one task invocation.
type Status string

const (
	// StatusOK means the task returned a payload before its timeout.
	StatusOK Status = "OK"
	// StatusError means the task failed, panicked or was not registered.
	StatusError Status = "ERROR"
	// StatusTimeout means the timeout elapsed before the task returned.
	StatusTimeout Status = "TIMEOUT"
)

// Outcome is the normalized result of one task invocation.
type Outcome struct {
	Task        Name          `json:"task"`
	Status      Status        `json:"status"`
	Output      Payload       `json:"-"`
	Error       string        `json:"error_message,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// OK reports whether the task succeeded.
func (o Outcome) OK() bool { return o.Status == StatusOK }

type outcomeJSON Outcome

type outcomeWire struct {
	outcomeJSON
	Output json.RawMessage `json:"output,omitempty"`
}

// MarshalJSON encodes the outcome with its output as a payload envelope.
func (o Outcome) MarshalJSON() ([]byte, error) {
	w := outcomeWire{outcomeJSON: outcomeJSON(o)}
	if o.Output != nil {
		data, err := MarshalPayload(o.Output)
		if err != nil {
			return nil, err
		}
		w.Output = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an outcome and its payload envelope.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var w outcomeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out, err := UnmarshalPayload(w.Output)
	if err != nil {
		return err
	}
	*o = Outcome(w.outcomeJSON)
	o.Output = out
	return nil
}

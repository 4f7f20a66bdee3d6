// Package id defines the TypeID identifiers used by the pricing pipeline.
//
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix", so a
// run ID sorts by creation time both as a string and in the store.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

const (
	// PrefixRun marks pipeline run IDs.
	PrefixRun Prefix = "prun"
	// PrefixTrigger marks trigger request IDs.
	PrefixTrigger Prefix = "trg"
)

// ID is a prefix-qualified TypeID. The zero value is Nil and encodes as
// an empty string (JSON) or NULL (SQL).
//
//nolint:recvcheck // pointer receivers only where the ID is decoded in place.
type ID struct {
	tid typeid.TypeID
	set bool
}

// RunID identifies a pipeline run.
type RunID = ID

// TriggerID identifies a trigger request.
type TriggerID = ID

// Nil is the zero ID.
var Nil ID

var errEmpty = errors.New("empty string")

func generate(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

// NewRunID returns a fresh run ID.
func NewRunID() RunID { return generate(PrefixRun) }

// NewTriggerID returns a fresh trigger ID.
func NewTriggerID() TriggerID { return generate(PrefixTrigger) }

// Parse parses any prefixed TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: %w", errEmpty)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

func parseAs(s string, want Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return v, nil
}

// ParseRunID parses s and requires the run prefix.
func ParseRunID(s string) (RunID, error) { return parseAs(s, PrefixRun) }

// ParseTriggerID parses s and requires the trigger prefix.
func ParseTriggerID(s string) (TriggerID, error) { return parseAs(s, PrefixTrigger) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.set }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Value implements driver.Valuer. Nil stores as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}

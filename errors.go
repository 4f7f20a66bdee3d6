package pricing

import (
	"errors"
	"fmt"

	"github.com/shivramiyer22/rideshare-sub001/id"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("pricing: no store configured")
	ErrStoreClosed = errors.New("pricing: store closed")
	ErrPersistence = errors.New("pricing: persistence failed")

	// Not found errors.
	ErrRunNotFound = errors.New("pricing: run not found")
	ErrUnknownTask = errors.New("pricing: unknown task")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("pricing: run already exists")
	ErrAlreadyRunning   = errors.New("pricing: pipeline already running")

	// Task errors. They are captured into task outcomes and never
	// propagate past the task adapter.
	ErrTaskTimeout   = errors.New("pricing: task timed out")
	ErrTaskExecution = errors.New("pricing: task execution failed")

	// Configuration errors.
	ErrInvalidGraph  = errors.New("pricing: invalid phase graph")
	ErrInvalidConfig = errors.New("pricing: invalid configuration")
)

// AlreadyRunningError is returned when a run is requested while another run
// holds the pipeline guard. It carries the ID of the run in progress so the
// caller can report it instead of failing.
type AlreadyRunningError struct {
	RunID id.RunID
}

// Error implements error.
func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("pricing: pipeline already running (run %s)", e.RunID)
}

// Is reports whether target is ErrAlreadyRunning.
func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// RunningID extracts the in-progress run ID from an error chain.
// It returns false when err does not wrap an *AlreadyRunningError.
func RunningID(err error) (id.RunID, bool) {
	var are *AlreadyRunningError
	if errors.As(err, &are) {
		return are.RunID, true
	}
	return id.Nil, false
}

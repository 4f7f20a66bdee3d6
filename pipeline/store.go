package pipeline

import (
	"context"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/id"
)

// Store persists run records. One document is written per run: created
// once, updated as phases complete, then finalized. Runs are never deleted.
//
// Implementations: store/memory, store/mongo, store/redis, store/postgres.
type Store interface {
	// CreateRun persists a new run. It returns pricing.ErrRunAlreadyExists
	// when a run with the same ID exists.
	CreateRun(ctx context.Context, r *Run) error

	// UpdateStatus sets the status of a run.
	UpdateStatus(ctx context.Context, runID id.RunID, status Status) error

	// UpdatePhase stores a phase result, replacing any previous result for
	// the same phase. Writing the same result twice leaves the record
	// unchanged.
	UpdatePhase(ctx context.Context, runID id.RunID, pr PhaseResult) error

	// FinalizeRun sets the terminal status, completion time and errors.
	FinalizeRun(ctx context.Context, runID id.RunID, status Status, completedAt time.Time, errs []RunError) error

	// SaveRun writes the whole run, creating it if missing. Used for the
	// best-effort final write after earlier writes failed.
	SaveRun(ctx context.Context, r *Run) error

	// GetRun returns a run by ID, or pricing.ErrRunNotFound.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// ListRuns returns up to limit runs, most recently started first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// LatestRun returns the most recently started run without scanning
	// history, or pricing.ErrRunNotFound when no run exists.
	LatestRun(ctx context.Context) (*Run, error)

	// Migrate prepares the backend schema and indexes.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

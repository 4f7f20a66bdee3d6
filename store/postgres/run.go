package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

const runColumns = `id, trigger_source, reason, status, started_at, completed_at,
	phase_results, errors, created_at, updated_at`

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, r *pipeline.Run) error {
	phases, errs, err := encodeRunJSON(r)
	if err != nil {
		return fmt.Errorf("pricing/postgres: create run: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pricing_pipeline_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID.String(), string(r.TriggerSource), r.Reason, string(r.Status),
		r.StartedAt, r.CompletedAt, phases, errs, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return pricing.ErrRunAlreadyExists
		}
		return fmt.Errorf("pricing/postgres: create run: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of a run unless it is already terminal.
func (s *Store) UpdateStatus(ctx context.Context, runID id.RunID, status pipeline.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pricing_pipeline_runs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4, $5)`,
		runID.String(), string(status),
		string(pipeline.StatusSucceeded), string(pipeline.StatusPartial), string(pipeline.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("pricing/postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.ensureExists(ctx, runID)
	}
	return nil
}

// UpdatePhase replaces the named phase result under a row lock.
func (s *Store) UpdatePhase(ctx context.Context, runID id.RunID, pr pipeline.PhaseResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pricing/postgres: update phase begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT phase_results FROM pricing_pipeline_runs WHERE id = $1 FOR UPDATE`,
		runID.String(),
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return pricing.ErrRunNotFound
		}
		return fmt.Errorf("pricing/postgres: update phase select: %w", err)
	}

	var phases pipeline.PhaseResults
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &phases); err != nil {
			return fmt.Errorf("pricing/postgres: decode phases: %w", err)
		}
	}
	phases = phases.Put(pr)

	data, err := json.Marshal(phases)
	if err != nil {
		return fmt.Errorf("pricing/postgres: encode phases: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE pricing_pipeline_runs
		SET phase_results = $2, updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(data),
	)
	if err != nil {
		return fmt.Errorf("pricing/postgres: update phase: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pricing/postgres: update phase commit: %w", err)
	}
	return nil
}

// FinalizeRun sets the terminal status, completion time and errors.
func (s *Store) FinalizeRun(ctx context.Context, runID id.RunID, status pipeline.Status, completedAt time.Time, errs []pipeline.RunError) error {
	errData, err := marshalErrors(errs)
	if err != nil {
		return fmt.Errorf("pricing/postgres: finalize run: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pricing_pipeline_runs
		SET status = $2, completed_at = $3, errors = $4, updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(status), completedAt.UTC(), errData,
	)
	if err != nil {
		return fmt.Errorf("pricing/postgres: finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pricing.ErrRunNotFound
	}
	return nil
}

// SaveRun upserts the whole run.
func (s *Store) SaveRun(ctx context.Context, r *pipeline.Run) error {
	phases, errs, err := encodeRunJSON(r)
	if err != nil {
		return fmt.Errorf("pricing/postgres: save run: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pricing_pipeline_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			trigger_source = EXCLUDED.trigger_source,
			reason = EXCLUDED.reason,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			phase_results = EXCLUDED.phase_results,
			errors = EXCLUDED.errors,
			updated_at = NOW()`,
		r.ID.String(), string(r.TriggerSource), r.Reason, string(r.Status),
		r.StartedAt, r.CompletedAt, phases, errs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("pricing/postgres: save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pricing_pipeline_runs WHERE id = $1`,
		runID.String(),
	)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, pricing.ErrRunNotFound
		}
		return nil, fmt.Errorf("pricing/postgres: get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, most recently started first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*pipeline.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pricing_pipeline_runs
		ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pricing/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*pipeline.Run
	for rows.Next() {
		r, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("pricing/postgres: list runs scan: %w", scanErr)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pricing/postgres: list runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run using the started_at
// index.
func (s *Store) LatestRun(ctx context.Context) (*pipeline.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pricing_pipeline_runs
		ORDER BY started_at DESC, id DESC LIMIT 1`)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, pricing.ErrRunNotFound
		}
		return nil, fmt.Errorf("pricing/postgres: latest run: %w", err)
	}
	return r, nil
}

// ── helpers ──────────────────────────────────────────────────────

func (s *Store) ensureExists(ctx context.Context, runID id.RunID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pricing_pipeline_runs WHERE id = $1)`,
		runID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("pricing/postgres: run exists: %w", err)
	}
	if !exists {
		return pricing.ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*pipeline.Run, error) {
	var (
		rawID, source, reason, status string
		phases, errs                  []byte
		r                             pipeline.Run
	)
	err := row.Scan(
		&rawID, &source, &reason, &status, &r.StartedAt, &r.CompletedAt,
		&phases, &errs, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	runID, err := id.ParseRunID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	r.ID = runID
	r.TriggerSource = pipeline.TriggerSource(source)
	r.Reason = reason
	r.Status = pipeline.Status(status)
	r.StartedAt = r.StartedAt.UTC()
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		r.CompletedAt = &t
	}

	r.PhaseResults = pipeline.PhaseResults{}
	if len(phases) > 0 {
		if err := json.Unmarshal(phases, &r.PhaseResults); err != nil {
			return nil, fmt.Errorf("decode phases: %w", err)
		}
	}
	r.Errors = []pipeline.RunError{}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &r.Errors); err != nil {
			return nil, fmt.Errorf("decode errors: %w", err)
		}
	}
	return &r, nil
}

func encodeRunJSON(r *pipeline.Run) (phases, errs string, err error) {
	phaseResults := r.PhaseResults
	if phaseResults == nil {
		phaseResults = pipeline.PhaseResults{}
	}
	data, err := json.Marshal(phaseResults)
	if err != nil {
		return "", "", fmt.Errorf("encode phases: %w", err)
	}
	errs, err = marshalErrors(r.Errors)
	if err != nil {
		return "", "", err
	}
	return string(data), errs, nil
}

func marshalErrors(errs []pipeline.RunError) (string, error) {
	if errs == nil {
		errs = []pipeline.RunError{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encode errors: %w", err)
	}
	return string(data), nil
}

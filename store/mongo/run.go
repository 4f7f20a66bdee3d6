package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// terminalStatuses are never overwritten by UpdateStatus.
var terminalStatuses = []string{
	string(pipeline.StatusSucceeded),
	string(pipeline.StatusPartial),
	string(pipeline.StatusFailed),
}

// newestFirst orders runs by start time, ties broken by ID.
var newestFirst = bson.D{
	{Key: "started_at", Value: -1},
	{Key: "_id", Value: -1},
}

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, r *pipeline.Run) error {
	m, err := toRunModel(r)
	if err != nil {
		return fmt.Errorf("pricing/mongo: create run: %w", err)
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return pricing.ErrRunAlreadyExists
		}
		return fmt.Errorf("pricing/mongo: create run: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of a run unless it is already terminal.
func (s *Store) UpdateStatus(ctx context.Context, runID id.RunID, status pipeline.Status) error {
	col := s.mdb.Collection(colRuns)
	rID := runID.String()

	res, err := col.UpdateOne(ctx,
		bson.M{"_id": rID, "status": bson.M{"$nin": terminalStatuses}},
		bson.M{"$set": bson.M{
			"status":     string(status),
			"updated_at": now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("pricing/mongo: update status: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.ensureExists(ctx, rID)
	}
	return nil
}

// UpdatePhase stores a phase result under its phase name and appends the
// name to phase_order once.
func (s *Store) UpdatePhase(ctx context.Context, runID id.RunID, pr pipeline.PhaseResult) error {
	pm, err := toPhaseModel(pr)
	if err != nil {
		return fmt.Errorf("pricing/mongo: update phase: %w", err)
	}

	col := s.mdb.Collection(colRuns)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": runID.String()},
		bson.M{
			"$set": bson.M{
				"phase_results." + pm.Phase: pm,
				"updated_at":                now(),
			},
			"$addToSet": bson.M{"phase_order": pm.Phase},
		},
	)
	if err != nil {
		return fmt.Errorf("pricing/mongo: update phase: %w", err)
	}
	if res.MatchedCount == 0 {
		return pricing.ErrRunNotFound
	}
	return nil
}

// FinalizeRun sets the terminal status, completion time and errors.
func (s *Store) FinalizeRun(ctx context.Context, runID id.RunID, status pipeline.Status, completedAt time.Time, errs []pipeline.RunError) error {
	col := s.mdb.Collection(colRuns)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": runID.String()},
		bson.M{"$set": bson.M{
			"status":       string(status),
			"completed_at": completedAt.UTC(),
			"errors":       toErrorModels(errs),
			"updated_at":   now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("pricing/mongo: finalize run: %w", err)
	}
	if res.MatchedCount == 0 {
		return pricing.ErrRunNotFound
	}
	return nil
}

// SaveRun replaces the whole run document, inserting it when missing.
func (s *Store) SaveRun(ctx context.Context, r *pipeline.Run) error {
	m, err := toRunModel(r)
	if err != nil {
		return fmt.Errorf("pricing/mongo: save run: %w", err)
	}
	m.UpdatedAt = now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	col := s.mdb.Collection(colRuns)
	_, err = col.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("pricing/mongo: save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	col := s.mdb.Collection(colRuns)
	var m runModel
	err := col.FindOne(ctx, bson.M{"_id": runID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pricing.ErrRunNotFound
		}
		return nil, fmt.Errorf("pricing/mongo: get run: %w", err)
	}
	return fromRunModel(&m)
}

// ListRuns returns up to limit runs, most recently started first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*pipeline.Run, error) {
	col := s.mdb.Collection(colRuns)
	findOpts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := col.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("pricing/mongo: list runs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []runModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("pricing/mongo: list runs decode: %w", err)
	}

	runs := make([]*pipeline.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("pricing/mongo: list runs convert: %w", convErr)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// LatestRun returns the most recently started run using the started_at
// index.
func (s *Store) LatestRun(ctx context.Context) (*pipeline.Run, error) {
	col := s.mdb.Collection(colRuns)
	var m runModel
	err := col.FindOne(ctx, bson.M{}, options.FindOne().SetSort(newestFirst)).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, pricing.ErrRunNotFound
		}
		return nil, fmt.Errorf("pricing/mongo: latest run: %w", err)
	}
	return fromRunModel(&m)
}

// ensureExists returns ErrRunNotFound when no run has the given ID.
func (s *Store) ensureExists(ctx context.Context, rID string) error {
	count, err := s.mdb.Collection(colRuns).CountDocuments(ctx, bson.M{"_id": rID})
	if err != nil {
		return fmt.Errorf("pricing/mongo: count runs: %w", err)
	}
	if count == 0 {
		return pricing.ErrRunNotFound
	}
	return nil
}

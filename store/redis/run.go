package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// CreateRun stores the run Hash and indexes it by start time.
func (s *Store) CreateRun(ctx context.Context, r *pipeline.Run) error {
	rID := r.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("pricing/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return pricing.ErrRunAlreadyExists
	}

	if err := s.writeRun(ctx, r); err != nil {
		return fmt.Errorf("pricing/redis: create run: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of a run unless it is already terminal.
func (s *Store) UpdateStatus(ctx context.Context, runID id.RunID, status pipeline.Status) error {
	key := runKey(runID.String())

	current, err := s.client.HGet(ctx, key, "status").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return pricing.ErrRunNotFound
		}
		return fmt.Errorf("pricing/redis: update status get: %w", err)
	}
	if pipeline.Status(current).Terminal() {
		return nil
	}

	_, err = s.client.HSet(ctx, key,
		"status", string(status),
		"updated_at", formatTime(time.Now().UTC()),
	).Result()
	if err != nil {
		return fmt.Errorf("pricing/redis: update status: %w", err)
	}
	return nil
}

// updatePhaseScript writes a phase result and appends the phase to the
// execution order only on its first write. Returns 0 when the run is
// missing.
//
// KEYS: run hash, phases hash, phase order list.
// ARGV: phase name, encoded result, updated_at.
var updatePhaseScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 1 then
  redis.call('RPUSH', KEYS[3], ARGV[1])
else
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
return 1
`)

// setLatestScript points the latest key at a run unless the current
// target started later. Equal start times keep the greater ID.
//
// KEYS: latest key, start-time index.
// ARGV: run ID, start score.
var setLatestScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[1] then
  local score = redis.call('ZSCORE', KEYS[2], cur)
  if score then
    local a, b = tonumber(score), tonumber(ARGV[2])
    if a > b or (a == b and cur > ARGV[1]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// UpdatePhase replaces the named phase result and records its position in
// the execution order the first time the phase is written. The check and
// both writes run as one script, so concurrent writers of the same phase
// cannot duplicate its order entry.
func (s *Store) UpdatePhase(ctx context.Context, runID id.RunID, pr pipeline.PhaseResult) error {
	rID := runID.String()

	data, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("pricing/redis: marshal phase %s: %w", pr.Phase, err)
	}

	written, err := updatePhaseScript.Run(ctx, s.client,
		[]string{runKey(rID), phasesKey(rID), phaseOrderKey(rID)},
		string(pr.Phase), string(data), formatTime(time.Now().UTC()),
	).Int()
	if err != nil {
		return fmt.Errorf("pricing/redis: update phase: %w", err)
	}
	if written == 0 {
		return pricing.ErrRunNotFound
	}
	return nil
}

// FinalizeRun sets the terminal status, completion time and errors.
func (s *Store) FinalizeRun(ctx context.Context, runID id.RunID, status pipeline.Status, completedAt time.Time, errs []pipeline.RunError) error {
	rID := runID.String()
	if err := s.mustExist(ctx, rID); err != nil {
		return err
	}

	errData, err := marshalErrors(errs)
	if err != nil {
		return fmt.Errorf("pricing/redis: finalize run: %w", err)
	}

	_, err = s.client.HSet(ctx, runKey(rID),
		"status", string(status),
		"completed_at", formatTime(completedAt.UTC()),
		"errors", errData,
		"updated_at", formatTime(time.Now().UTC()),
	).Result()
	if err != nil {
		return fmt.Errorf("pricing/redis: finalize run: %w", err)
	}
	return nil
}

// SaveRun replaces every key of the run, creating it when missing.
func (s *Store) SaveRun(ctx context.Context, r *pipeline.Run) error {
	cp := r.Clone()
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	if err := s.writeRun(ctx, cp); err != nil {
		return fmt.Errorf("pricing/redis: save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	return s.readRun(ctx, runID.String())
}

// ListRuns returns up to limit runs, most recently started first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*pipeline.Run, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, runsByStartKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("pricing/redis: list runs zrevrange: %w", err)
	}

	runs := make([]*pipeline.Run, 0, len(ids))
	for _, rID := range ids {
		r, getErr := s.readRun(ctx, rID)
		if errors.Is(getErr, pricing.ErrRunNotFound) {
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// LatestRun follows the latest pointer key. Data written without the
// pointer falls back to the head of the start-time index.
func (s *Store) LatestRun(ctx context.Context) (*pipeline.Run, error) {
	rID, err := s.client.Get(ctx, latestRunKey).Result()
	if err == nil {
		return s.readRun(ctx, rID)
	}
	if !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("pricing/redis: latest run: %w", err)
	}

	ids, err := s.client.ZRevRange(ctx, runsByStartKey, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("pricing/redis: latest run: %w", err)
	}
	if len(ids) == 0 {
		return nil, pricing.ErrRunNotFound
	}
	return s.readRun(ctx, ids[0])
}

// ── helpers ──────────────────────────────────────────────────────

func (s *Store) mustExist(ctx context.Context, rID string) error {
	exists, err := s.client.Exists(ctx, runKey(rID)).Result()
	if err != nil {
		return fmt.Errorf("pricing/redis: run exists: %w", err)
	}
	if exists == 0 {
		return pricing.ErrRunNotFound
	}
	return nil
}

// writeRun writes the run Hash, its phases, its index entry and the latest
// pointer in one transaction.
func (s *Store) writeRun(ctx context.Context, r *pipeline.Run) error {
	rID := r.ID.String()
	fields, err := runToMap(r)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, runKey(rID), phasesKey(rID), phaseOrderKey(rID))
	pipe.HSet(ctx, runKey(rID), fields)
	for _, pr := range r.PhaseResults {
		data, mErr := json.Marshal(pr)
		if mErr != nil {
			return fmt.Errorf("marshal phase %s: %w", pr.Phase, mErr)
		}
		pipe.HSet(ctx, phasesKey(rID), string(pr.Phase), string(data))
		pipe.RPush(ctx, phaseOrderKey(rID), string(pr.Phase))
	}
	score := r.StartedAt.UnixMicro()
	pipe.ZAdd(ctx, runsByStartKey, goredis.Z{
		Score:  float64(score),
		Member: rID,
	})
	setLatestScript.Eval(ctx, pipe, []string{latestRunKey, runsByStartKey}, rID, score)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) readRun(ctx context.Context, rID string) (*pipeline.Run, error) {
	vals, err := s.client.HGetAll(ctx, runKey(rID)).Result()
	if err != nil {
		return nil, fmt.Errorf("pricing/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, pricing.ErrRunNotFound
	}
	r, err := mapToRun(vals)
	if err != nil {
		return nil, err
	}

	order, err := s.client.LRange(ctx, phaseOrderKey(rID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("pricing/redis: get phase order: %w", err)
	}
	if len(order) == 0 {
		return r, nil
	}
	raw, err := s.client.HMGet(ctx, phasesKey(rID), order...).Result()
	if err != nil {
		return nil, fmt.Errorf("pricing/redis: get phases: %w", err)
	}
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var pr pipeline.PhaseResult
		if err := json.Unmarshal([]byte(str), &pr); err != nil {
			return nil, fmt.Errorf("pricing/redis: decode phase %s: %w", order[i], err)
		}
		r.PhaseResults = append(r.PhaseResults, pr)
	}
	return r, nil
}

func runToMap(r *pipeline.Run) (map[string]interface{}, error) {
	errData, err := marshalErrors(r.Errors)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{
		"id":             r.ID.String(),
		"trigger_source": string(r.TriggerSource),
		"reason":         r.Reason,
		"status":         string(r.Status),
		"errors":         errData,
		"started_at":     formatTime(r.StartedAt),
		"created_at":     formatTime(r.CreatedAt),
		"updated_at":     formatTime(r.UpdatedAt),
	}
	if r.CompletedAt != nil {
		m["completed_at"] = formatTime(*r.CompletedAt)
	}
	return m, nil
}

func mapToRun(m map[string]string) (*pipeline.Run, error) {
	rID, err := id.ParseRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("pricing/redis: parse run id: %w", err)
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	r := &pipeline.Run{
		Entity: pricing.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:            rID,
		TriggerSource: pipeline.TriggerSource(m["trigger_source"]),
		Reason:        m["reason"],
		Status:        pipeline.Status(m["status"]),
		StartedAt:     startedAt,
		PhaseResults:  pipeline.PhaseResults{},
		Errors:        []pipeline.RunError{},
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		r.CompletedAt = &t
	}
	if v := m["errors"]; v != "" {
		if err := json.Unmarshal([]byte(v), &r.Errors); err != nil {
			return nil, fmt.Errorf("pricing/redis: decode errors: %w", err)
		}
	}
	return r, nil
}

func marshalErrors(errs []pipeline.RunError) (string, error) {
	if errs == nil {
		errs = []pipeline.RunError{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

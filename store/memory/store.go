// Package memory provides a fully in-memory implementation of
// pipeline.Store. Safe for concurrent access. Intended for unit testing
// and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// Ensure Store implements pipeline.Store at compile time.
var _ pipeline.Store = (*Store)(nil)

// Store is an in-memory run store.
type Store struct {
	mu sync.RWMutex

	runs   map[string]*pipeline.Run
	latest string
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs: make(map[string]*pipeline.Run),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return pricing.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later writes fail with ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Run Store
// ──────────────────────────────────────────────────

// CreateRun persists a new run.
func (m *Store) CreateRun(_ context.Context, r *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return pricing.ErrStoreClosed
	}
	key := r.ID.String()
	if _, exists := m.runs[key]; exists {
		return pricing.ErrRunAlreadyExists
	}
	m.runs[key] = r.Clone()
	m.trackLatest(key)
	return nil
}

// UpdateStatus sets the status of a run. A terminal status is never
// overwritten.
func (m *Store) UpdateStatus(_ context.Context, runID id.RunID, status pipeline.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.get(runID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePhase replaces the named phase result of a run.
func (m *Store) UpdatePhase(_ context.Context, runID id.RunID, pr pipeline.PhaseResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.get(runID)
	if err != nil {
		return err
	}
	r.PhaseResults = r.PhaseResults.Put(pr.Clone())
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// FinalizeRun sets the terminal state of a run.
func (m *Store) FinalizeRun(_ context.Context, runID id.RunID, status pipeline.Status, completedAt time.Time, errs []pipeline.RunError) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.get(runID)
	if err != nil {
		return err
	}
	t := completedAt.UTC()
	r.Status = status
	r.CompletedAt = &t
	r.Errors = append([]pipeline.RunError{}, errs...)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveRun writes the whole run, creating it if missing.
func (m *Store) SaveRun(_ context.Context, r *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return pricing.ErrStoreClosed
	}
	key := r.ID.String()
	cp := r.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.runs[key] = cp
	m.trackLatest(key)
	return nil
}

// GetRun returns a run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*pipeline.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, pricing.ErrRunNotFound
	}
	return r.Clone(), nil
}

// ListRuns returns up to limit runs, most recently started first.
func (m *Store) ListRuns(_ context.Context, limit int) ([]*pipeline.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*pipeline.Run, 0, len(m.runs))
	for _, r := range m.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, k int) bool {
		if !result[i].StartedAt.Equal(result[k].StartedAt) {
			return result[i].StartedAt.After(result[k].StartedAt)
		}
		// Run IDs are K-sortable; break ties by ID.
		return result[i].ID.String() > result[k].ID.String()
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	for i, r := range result {
		result[i] = r.Clone()
	}
	return result, nil
}

// LatestRun returns the most recently started run.
func (m *Store) LatestRun(_ context.Context) (*pipeline.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest == "" {
		return nil, pricing.ErrRunNotFound
	}
	return m.runs[m.latest].Clone(), nil
}

// get returns the stored run for mutation. Caller must hold the write lock.
func (m *Store) get(runID id.RunID) (*pipeline.Run, error) {
	if m.closed {
		return nil, pricing.ErrStoreClosed
	}
	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, pricing.ErrRunNotFound
	}
	return r, nil
}

// trackLatest moves the latest pointer to key when it started later.
// Caller must hold the write lock.
func (m *Store) trackLatest(key string) {
	if m.latest == "" {
		m.latest = key
		return
	}
	cur, cand := m.runs[m.latest], m.runs[key]
	if cand.StartedAt.After(cur.StartedAt) ||
		(cand.StartedAt.Equal(cur.StartedAt) && key > m.latest) {
		m.latest = key
	}
}

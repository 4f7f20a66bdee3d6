package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// Collection name constants.
const (
	colRuns = "pipeline_runs"
)

// Ensure Store implements pipeline.Store at compile time.
var _ pipeline.Store = (*Store)(nil)

// Store is a grove ORM implementation of pipeline.Store using the MongoDB
// driver. The caller owns the *grove.DB lifecycle; Store never closes it.
type Store struct {
	db     *grove.DB
	mdb    *mongodriver.MongoDB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store. The caller owns the db lifecycle -- the
// Store will not close it on Close().
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		mdb:    mongodriver.Unwrap(db),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *grove.DB for advanced usage.
func (s *Store) DB() *grove.DB {
	return s.db
}

// Database returns the underlying MongoDB database. The change watcher
// opens its change streams on the ingestion collections of this database.
func (s *Store) Database() *mongod.Database {
	return s.mdb.Collection(colRuns).Database()
}

// Migrate creates indexes for the run collection.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("pricing/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op because the caller owns the *grove.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for all pricing collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRuns: {
			// History and latest-run lookups.
			{Keys: bson.D{
				{Key: "started_at", Value: -1},
				{Key: "_id", Value: -1},
			}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
}

package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollections are the ingestion collections watched when none are
// given.
var DefaultCollections = []string{"rides", "orders"}

// watchedOperations are the change types that carry new demand or supply
// data.
var watchedOperations = bson.A{"insert", "update", "replace"}

// MongoSource is a ChangeSource backed by a MongoDB change stream on one
// database. It resumes from the last seen token after a reconnect.
// Change streams require a replica set or sharded cluster.
type MongoSource struct {
	db          *mongod.Database
	collections []string

	resumeToken bson.Raw
}

var _ ChangeSource = (*MongoSource)(nil)

// NewMongoSource watches the named collections of db.
func NewMongoSource(db *mongod.Database, collections ...string) *MongoSource {
	if len(collections) == 0 {
		collections = DefaultCollections
	}
	return &MongoSource{db: db, collections: collections}
}

// Watch opens the change stream and forwards matching events to fn.
func (s *MongoSource) Watch(ctx context.Context, fn func(Change)) error {
	pipeline := mongod.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: s.collections}}},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: watchedOperations}}},
		}}},
	}

	opts := options.ChangeStream()
	if s.resumeToken != nil {
		opts.SetResumeAfter(s.resumeToken)
	}

	cs, err := s.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("pricing/watcher: open change stream: %w", err)
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			return fmt.Errorf("pricing/watcher: decode change: %w", err)
		}
		s.resumeToken = cs.ResumeToken()
		fn(Change{
			Collection:    ev.NS.Coll,
			OperationType: ev.OperationType,
			ObservedAt:    time.Now().UTC(),
		})
	}

	if err := cs.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pricing/watcher: change stream: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("pricing/watcher: change stream closed")
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		DB   string `bson:"db"`
		Coll string `bson:"coll"`
	} `bson:"ns"`
}

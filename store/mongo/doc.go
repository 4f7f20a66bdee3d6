// Package mongo implements pipeline.Store using the grove ORM with MongoDB
// driver. One document per run lives in the pipeline_runs collection; phase
// results are a sub-document keyed by phase name and task outputs are
// stored as native documents.
//
// The caller owns the *grove.DB lifecycle -- mongo never closes it. Pass the
// db handle through the constructor:
//
//	import (
//	    "github.com/xraph/grove"
//	    "github.com/shivramiyer22/rideshare-sub001/store/mongo"
//	)
//
//	db, _ := grove.Open(ctx, "mongo", dsn)
//	store := mongo.New(db)
//	store.Migrate(ctx)
package mongo

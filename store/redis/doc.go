// Package redis implements pipeline.Store backed by Redis.
//
// Each run is a Hash at pricing:run:{id}. Phase results live in a second
// Hash keyed by phase name with a List recording execution order, and the
// pricing:runs_by_start Sorted Set indexes runs by start time so history
// and latest-run lookups never scan every key.
//
// The caller owns the Redis client lifecycle -- redis never closes it:
//
//	import (
//	    goredis "github.com/redis/go-redis/v9"
//	    "github.com/shivramiyer22/rideshare-sub001/store/redis"
//	)
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	store := redis.New(client)
//	if err := store.Ping(ctx); err != nil { ... }
package redis

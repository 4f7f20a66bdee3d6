// Package pricing provides the pipeline orchestrator that recomputes pricing
// intelligence for the rideshare platform. A run executes the analytical
// agent tasks (forecasting, rule generation, recommendation synthesis and
// what-if simulation) in a fixed phase order and persists the combined result
// as one versioned run record.
//
// The orchestrator is a library first. Wire a result store, register the
// task implementations and trigger runs through the gateway:
//
//	store := memory.New()
//	coord, err := pipeline.NewCoordinator(tasks, store,
//	    pipeline.WithLogger(logger),
//	)
//	gw := gateway.New(coord, store)
//	resp, err := gw.Trigger(ctx, gateway.Request{Reason: "manual"})
//
// # Architecture
//
// Trigger Gateway → Run Coordinator → Phase Graph → Task Adapter → Result Store.
// The coordinator owns the single "run in progress" guard; at most one run is
// RUNNING at any time. Every store backend (memory, mongo, redis, postgres)
// implements the same pipeline.Store contract.
//
// All run IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based identifiers.
package pricing

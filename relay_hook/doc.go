// Package relayhook bridges pricing pipeline lifecycle events to Relay for
// webhook delivery. When registered as an extension, it emits typed webhook
// events (pricing.run.succeeded, pricing.run.partial, etc.) so downstream
// consumers learn about fresh recommendations without polling.
//
// Usage:
//
//	r, _ := relay.New(relay.WithStore(store))
//	relayhook.RegisterAll(ctx, r)
//
//	hook := relayhook.New(r)
//	engine.WithExtension(hook)
//
// To restrict which events are emitted:
//
//	hook := relayhook.New(r,
//	    relayhook.WithEvents(
//	        relayhook.EventRunSucceeded,
//	        relayhook.EventRunPartial,
//	    ),
//	)
package relayhook

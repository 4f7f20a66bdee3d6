// Package middleware provides composable middleware for task invocations.
//
// A [Middleware] wraps a single analytical task call made by the task
// adapter. Middleware run inside the adapter's timeout boundary: the
// context they receive carries the invocation deadline. They are composed
// into a chain using [Chain] and applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//	adapter := task.NewAdapter(registry, task.WithInterceptor(chain))
//
// # Built-in Middleware
//
//   - [Logging]: logs task name, run, phase, duration, and outcome
//   - [Recover]: catches panics and converts them to errors
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-task duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *task.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware

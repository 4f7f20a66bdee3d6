// Package observability provides a lifecycle metrics extension for the
// pricing pipeline. The MetricsExtension implements run, task and trigger
// hooks to record system-wide counters.
//
// For per-invocation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

// Package trace is the generator's structured logging: spans and points
// emitted by each pipeline stage, written as text or NDJSON.
//
// Enable it from the CLI:
//
//	ferment generate --trace=- --trace-level=detail
//
// Tracers travel through the pipeline in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopeStage, "resolve")
//	defer span.End("")
//
// Levels: off, error (ring buffer dumped on failure), phase (driver and
// stages), detail (per crate), debug (per item).
package trace

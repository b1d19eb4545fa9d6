// Package job orchestrates the request lifecycle around the engine. It
// is structured into small files by concern:
//
//   - runner.go: Runner, the end-to-end pipeline and the single
//     boundary converting failures into FAILED envelopes.
//   - admission.go: the single-slot gate serializing job execution.
//   - errors.go: failure kinds and Classify for status mapping.
//   - events.go: lifecycle event publishing (eventpub_memory.go holds
//     the in-memory implementation used by tests).
//   - metrics.go: Prometheus job counters and durations.
//
// External packages should treat Runner.Run as the invocation boundary:
// it always returns a terminal envelope and never panics outward.
package job

// Package guardrail implements the single choke point every sensitive
// operation passes through. A guarded call runs an ordered, short-circuiting
// pipeline inside the session's critical section:
//
//	blocked check -> rate limit -> content filter -> authorization ->
//	execute -> output redaction -> audit emission
//
// Rejections are soft results, never panics or opaque errors. Violations
// accumulate per session in a rolling window; crossing the threshold blocks
// the session until a TTL lapses. Rate accounting uses a monotonic clock and
// consumes a slot for every non-blocked attempt regardless of the downstream
// outcome, bounding total backend load.
package guardrail

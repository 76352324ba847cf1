// Package observability defines the audit event contract for guarded calls
// and the built-in sinks. One event is emitted per guarded call: session id,
// tool name, outcome kind, latency and violation count. Raw patient PII
// (name, date of birth, phone, appointment details) never appears in an
// event; redaction is fail-safe, so an uncertain field is dropped entirely
// rather than partially masked.
package observability

// Package session houses the in-process session state store. Session state
// tracks per-conversation verification status, the patient binding, and the
// most recent appointment listing used to resolve ordinal references.
//
// The store is volatile: state lives for the duration of the process, is
// evicted after an inactivity TTL, and is never shared across processes. Distinct session ids never contend on a shared lock; operations
// on the same id are serialized.
package session

// Package history stores per-session conversation transcripts so callers
// of the assistant do not have to thread message slices through every turn.
// Entries are bounded and evicted oldest-first.
package history

// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer ServiceLogger with contextual
// helpers (session, component) and domain specific logging helpers for
// guarded calls and repository access.
//
// Everything emitted through this package is expected to be PII free; the
// observability layer redacts payloads before they reach a Logger.
package logging

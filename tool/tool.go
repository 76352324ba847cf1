// Package tool implements the appointment tools the assistant can invoke and
// the dispatcher that routes every invocation through the guardrail gate with
// schema validated arguments and a closed set of result kinds.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/clinicmesh/internal/util"
	"github.com/hupe1980/clinicmesh/session"
)

// Tool defines the interface for guarded appointment capabilities.
//
// Tools run inside the guardrail gate's per-session critical section. The
// session state they receive is the authoritative copy; mutations persist
// when the call succeeds. Arguments are parsed from JSON and validated
// against the tool's schema before Call runs.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return a *Result for every domain outcome instead of an error
//   - Reserve errors for infrastructure failures the caller may retry
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description of what this tool
	// does. It is provided to the model to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool under the session lock with validated args.
	Call(ctx context.Context, st *session.State, args map[string]any) (*Result, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ResultKind is the closed set of tool outcomes. Callers switch on the kind;
// new kinds are a breaking change for every surface.
type ResultKind string

const (
	// KindSuccess carries the tool's data payload.
	KindSuccess ResultKind = "success"
	// KindNotFound means no record matched the request.
	KindNotFound ResultKind = "not_found"
	// KindNotVerified means the tool requires identity verification first.
	KindNotVerified ResultKind = "not_verified"
	// KindAlreadyConfirmed means the appointment is already confirmed.
	KindAlreadyConfirmed ResultKind = "already_confirmed"
	// KindAlreadyCancelled means the appointment is already cancelled.
	KindAlreadyCancelled ResultKind = "already_cancelled"
	// KindInvalidTransition means the status machine forbids the change.
	KindInvalidTransition ResultKind = "invalid_transition"
	// KindRejected means the guardrail refused the call.
	KindRejected ResultKind = "rejected"
	// KindBlocked means the session is blocked.
	KindBlocked ResultKind = "blocked"
	// KindTransientError means a dependency failed and the call may be retried.
	KindTransientError ResultKind = "transient_error"
	// KindValidationError means the arguments did not match the schema.
	KindValidationError ResultKind = "validation_error"
)

// Terminal reports whether retrying the same call cannot change the outcome.
func (k ResultKind) Terminal() bool {
	return k != KindTransientError && k != KindRejected
}

// Result is the uniform return shape of every tool call.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	// Code carries the guardrail decision code on refusals, so serving
	// surfaces can tell a rate limit from a content or authorization
	// rejection.
	Code string `json:"code,omitempty"`
	// NeedsDisclaimer asks the surface to attach the medical disclaimer.
	NeedsDisclaimer bool `json:"needs_disclaimer,omitempty"`
	// RetryAfterSeconds is set on rate-limited rejections.
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}

// RedactFor restricts the result's payload to the given patient when the
// payload supports owner scoping. The gate calls this on every result before
// it leaves the critical section.
func (r *Result) RedactFor(patientID int64) any {
	if r == nil {
		return nil
	}
	out := *r
	if scoped, ok := r.Data.(ownerScoped); ok {
		out.Data = scoped.RedactFor(patientID)
	}
	return &out
}

// ownerScoped mirrors the gate's redaction contract for payload types.
type ownerScoped interface {
	RedactFor(patientID int64) any
}

// Success builds a success result with a data payload.
func Success(data any) *Result {
	return &Result{Kind: KindSuccess, Data: data}
}

// Successf builds a success result with a formatted message only.
func Successf(format string, args ...any) *Result {
	return &Result{Kind: KindSuccess, Message: fmt.Sprintf(format, args...)}
}

// Failure builds a non-success result with a caller-safe message.
func Failure(kind ResultKind, format string, args ...any) *Result {
	return &Result{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

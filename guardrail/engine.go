package guardrail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/observability"
	"github.com/hupe1980/clinicmesh/session"
)

// Outcome is the closed set of gate results.
type Outcome string

const (
	// OutcomeAllowed means the operation ran and its result is attached.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeRejected means the call was refused but the session may
	// continue (rate limit, content filter, authorization).
	OutcomeRejected Outcome = "rejected"
	// OutcomeBlocked means the session is blocked and all calls are
	// refused until the block lapses.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeTransient means a downstream dependency failed and the call
	// may be retried as-is.
	OutcomeTransient Outcome = "transient"
)

// Reason codes attached to non-allowed decisions.
const (
	CodeSessionBlocked   = "session_blocked"
	CodeRateLimited      = "rate_limited"
	CodeContentRejected  = "content_rejected"
	CodeNotVerified      = "not_verified"
	CodeNotAuthorized    = "not_authorized"
	CodeUpstreamError    = "upstream_error"
	CodeInconsistent     = "inconsistent_state"
	CodeInvalidOperation = "invalid_operation"
)

// OwnerScoped is implemented by operation results that can produce a
// view restricted to one patient. The output filter calls it before the
// result leaves the gate, so a result never carries another patient's
// records even if the operation misbehaved.
type OwnerScoped interface {
	RedactFor(patientID int64) any
}

// Request describes one guarded tool call.
type Request struct {
	// SessionID identifies the conversation. Required.
	SessionID string
	// Tool is the tool name, recorded in audit events.
	Tool string
	// Input is the raw user-derived input scanned by the content filter.
	Input string
	// Op runs the actual operation once every check has passed. It
	// receives the session state under the per-session lock and the
	// sanitized input. Mutations to st are persisted when Op returns nil
	// alongside an allowed decision.
	Op Operation
}

// Operation is the guarded body of a tool call.
type Operation func(ctx context.Context, st *session.State, sanitizedInput string) (any, error)

// Decision is the gate's verdict on one request.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	// Code is a machine-readable reason for non-allowed outcomes.
	Code string `json:"code,omitempty"`
	// Reason is a human-readable explanation safe to show the caller.
	Reason string `json:"reason,omitempty"`
	// RetryAfter is set on rate-limited decisions.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Violations is the session's rolling violation count after this call.
	Violations int `json:"violations,omitempty"`
	// NeedsDisclaimer asks the caller to attach the medical disclaimer.
	NeedsDisclaimer bool `json:"needs_disclaimer,omitempty"`
	// Result is the operation result on allowed outcomes, owner-redacted
	// when it implements OwnerScoped.
	Result any `json:"result,omitempty"`
}

// Allowed reports whether the operation ran.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

// Config tunes the gate's limits and blocking policy.
type Config struct {
	// RateWindow is the sliding window for per-session rate limiting.
	RateWindow time.Duration
	// UnverifiedLimit is the call budget per window before verification.
	UnverifiedLimit int
	// VerifiedLimit is the call budget per window after verification.
	VerifiedLimit int
	// ViolationWindow is how long violations count toward blocking.
	ViolationWindow time.Duration
	// BlockThreshold is the violation count that triggers a block.
	BlockThreshold int
	// BlockDuration is the block length for repeated violations.
	BlockDuration time.Duration
	// InjectionBlockDuration is the immediate block length for
	// prompt-injection attempts.
	InjectionBlockDuration time.Duration
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		RateWindow:             time.Minute,
		UnverifiedLimit:        10,
		VerifiedLimit:          30,
		ViolationWindow:        10 * time.Minute,
		BlockThreshold:         3,
		BlockDuration:          15 * time.Minute,
		InjectionBlockDuration: time.Hour,
	}
}

// EngineOptions configures optional collaborators of the engine.
type EngineOptions struct {
	Config Config
	Logger logging.Logger
	Sink   observability.Sink
	Clock  func() time.Time
}

// Engine runs the guarded-call pipeline. Every tool call goes through
// Gate, which executes checks in a fixed order inside the session's
// critical section:
//
//	block check -> rate limit -> content filter -> authorize ->
//	execute -> output filter -> audit
//
// Engine is safe for concurrent use; calls for distinct sessions never
// contend on a shared lock.
type Engine struct {
	store   *session.Store
	limiter *RateLimiter
	tracker *ViolationTracker
	filter  *Filter
	cfg     Config
	logger  logging.Logger
	sink    observability.Sink
	now     func() time.Time
}

// NewEngine creates a gate over the given session store.
func NewEngine(store *session.Store, optFns ...func(o *EngineOptions)) *Engine {
	opts := EngineOptions{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
		Sink:   observability.NopSink{},
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	return &Engine{
		store:   store,
		limiter: NewRateLimiter(cfg.RateWindow, cfg.UnverifiedLimit, cfg.VerifiedLimit, opts.Clock),
		tracker: NewViolationTracker(cfg.ViolationWindow, opts.Clock),
		filter:  NewFilter(),
		cfg:     cfg,
		logger:  opts.Logger,
		sink:    opts.Sink,
		now:     opts.Clock,
	}
}

// Forget drops the rate window and violation records held for a session.
// The session store's eviction hook calls it so a recreated id starts with
// a clean slate and the per-session maps do not grow with session churn.
func (e *Engine) Forget(sessionID string) {
	e.limiter.Forget(sessionID)
	e.tracker.Forget(sessionID)
}

// Gate runs one guarded call end to end and always returns a decision.
// The whole pipeline holds the session's lock, so concurrent calls for
// the same session observe each other's effects in full.
func (e *Engine) Gate(ctx context.Context, req Request) Decision {
	start := e.now()
	var d Decision

	if req.SessionID == "" || req.Op == nil {
		d = Decision{Outcome: OutcomeRejected, Code: CodeInvalidOperation, Reason: "missing session or operation"}
		e.audit(req, d, start)
		return d
	}

	err := e.store.WithSession(req.SessionID, func(st *session.State) error {
		d = e.gateLocked(ctx, req, st)
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrInconsistentState) {
			d = Decision{Outcome: OutcomeBlocked, Code: CodeInconsistent, Reason: "session state inconsistency"}
		} else {
			d = Decision{Outcome: OutcomeTransient, Code: CodeUpstreamError, Reason: "session store error"}
		}
	}

	e.audit(req, d, start)
	return d
}

func (e *Engine) gateLocked(ctx context.Context, req Request, st *session.State) Decision {
	now := e.now()

	// 1. Block check. Runs first so blocked sessions spend nothing else.
	if st.BlockedNow(now) {
		return Decision{
			Outcome: OutcomeBlocked,
			Code:    CodeSessionBlocked,
			Reason:  st.BlockReason,
		}
	}

	// 2. Rate limit. The slot is consumed even if a later check rejects.
	if ok, retryAfter := e.limiter.Allow(req.SessionID, st.Verified); !ok {
		count := e.tracker.Record(req.SessionID, ViolationRateLimit, SeverityMedium)
		e.maybeBlock(st, count, now)
		return Decision{
			Outcome:    OutcomeRejected,
			Code:       CodeRateLimited,
			Reason:     "too many requests, slow down",
			RetryAfter: retryAfter,
			Violations: count,
		}
	}

	// 3. Content filter.
	verdict := e.filter.Scan(req.Input)
	var violations int
	for _, f := range verdict.Findings {
		switch f.Category {
		case CategoryInjection:
			violations = e.tracker.Record(req.SessionID, ViolationInjection, SeverityHigh)
			st.Block("prompt injection attempt", now.Add(e.cfg.InjectionBlockDuration))
		case CategoryHarmful:
			violations = e.tracker.Record(req.SessionID, ViolationHarmful, SeverityHigh)
		case CategoryPII:
			violations = e.tracker.Record(req.SessionID, ViolationPII, SeverityMedium)
		}
	}
	if st.Blocked {
		return Decision{
			Outcome:    OutcomeBlocked,
			Code:       CodeSessionBlocked,
			Reason:     st.BlockReason,
			Violations: violations,
		}
	}
	if verdict.Reject {
		e.maybeBlock(st, violations, now)
		if st.Blocked {
			return Decision{
				Outcome:    OutcomeBlocked,
				Code:       CodeSessionBlocked,
				Reason:     st.BlockReason,
				Violations: violations,
			}
		}
		return Decision{
			Outcome:    OutcomeRejected,
			Code:       CodeContentRejected,
			Reason:     fmt.Sprintf("request refused: %s content detected", verdict.RejectCategory),
			Violations: violations,
		}
	}
	if violations > 0 {
		e.maybeBlock(st, violations, now)
		if st.Blocked {
			return Decision{
				Outcome:    OutcomeBlocked,
				Code:       CodeSessionBlocked,
				Reason:     st.BlockReason,
				Violations: violations,
			}
		}
	}

	// 4. Execute. Authorization beyond verification is the operation's
	// job since only it knows which records the call touches; the output
	// filter below is the backstop.
	result, err := req.Op(ctx, st, verdict.Sanitized)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Decision{Outcome: OutcomeTransient, Code: CodeUpstreamError, Reason: "operation timed out"}
		}
		var authErr *AuthorizationError
		if errors.As(err, &authErr) {
			count := e.tracker.Record(req.SessionID, ViolationAuthorization, SeverityHigh)
			e.maybeBlock(st, count, now)
			if st.Blocked {
				return Decision{
					Outcome:    OutcomeBlocked,
					Code:       CodeSessionBlocked,
					Reason:     st.BlockReason,
					Violations: count,
				}
			}
			return Decision{
				Outcome:    OutcomeRejected,
				Code:       CodeNotAuthorized,
				Reason:     "access to the requested record is not permitted",
				Violations: count,
			}
		}
		return Decision{Outcome: OutcomeTransient, Code: CodeUpstreamError, Reason: "operation failed"}
	}

	// 5. Output filter. Owner-scoped results are redacted to the bound
	// patient; free text is PII-masked.
	if st.Verified {
		if scoped, ok := result.(OwnerScoped); ok {
			result = scoped.RedactFor(st.PatientID)
		}
	}
	if text, ok := result.(string); ok {
		result = e.filter.Sanitize(text)
	}

	return Decision{
		Outcome:         OutcomeAllowed,
		NeedsDisclaimer: verdict.NeedsDisclaimer,
		Violations:      violations,
		Result:          result,
	}
}

// maybeBlock applies the repeated-violation policy. High-severity
// injection blocks are handled inline in the pipeline; this covers the
// rolling-count threshold.
func (e *Engine) maybeBlock(st *session.State, count int, now time.Time) {
	if st.Blocked || count < e.cfg.BlockThreshold {
		return
	}
	st.Block("repeated guardrail violations", now.Add(e.cfg.BlockDuration))
}

func (e *Engine) audit(req Request, d Decision, start time.Time) {
	latency := e.now().Sub(start)
	ev := observability.NewEvent(req.SessionID, req.Tool, string(d.Outcome), d.Code, latency, d.Violations)
	e.sink.Emit(ev)
	e.logger.Info("guarded call",
		"tool", req.Tool,
		"outcome", string(d.Outcome),
		"code", d.Code,
		"latency_ms", latency.Milliseconds(),
		"violations", d.Violations,
	)
}

// AuthorizationError marks an operation result that attempted to touch
// another patient's records. The gate converts it to a rejection and
// records an authorization violation.
type AuthorizationError struct {
	PatientID int64
	Resource  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to access %s", e.Resource)
}

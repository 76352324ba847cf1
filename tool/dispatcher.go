package tool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/clinicmesh/guardrail"
	"github.com/hupe1980/clinicmesh/internal/util"
	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/session"
)

// Dispatcher routes tool invocations through the guardrail gate. Every call
// passes the full pipeline; there is no unguarded path to a tool.
type Dispatcher struct {
	engine *guardrail.Engine
	tools  map[string]Tool
	logger logging.Logger
}

// DispatcherOptions configures optional collaborators of the dispatcher.
type DispatcherOptions struct {
	Logger logging.Logger
}

// NewDispatcher creates a dispatcher over the given gate.
func NewDispatcher(engine *guardrail.Engine, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Dispatcher{
		engine: engine,
		tools:  make(map[string]Tool),
		logger: opts.Logger,
	}
}

// Register adds a tool. Registering a duplicate name panics; the tool set is
// assembled once at startup.
func (d *Dispatcher) Register(t Tool) {
	if _, exists := d.tools[t.Name()]; exists {
		panic(fmt.Sprintf("tool: duplicate registration of %q", t.Name()))
	}
	d.tools[t.Name()] = t
}

// Tools returns the registered tools sorted by name, for surfaces that
// declare the tool set to a model or an MCP client.
func (d *Dispatcher) Tools() []Tool {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, d.tools[name])
	}
	return out
}

// Dispatch runs one tool call end to end: guardrail gate, argument
// validation, tool execution, output redaction. It always returns a result;
// guardrail refusals and infrastructure failures are mapped onto the closed
// result kinds.
//
// rawInput is the user-visible text that triggered the call. It is what the
// content filter scans; tool arguments are validated separately.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, toolName, rawInput string, args map[string]any) *Result {
	t, ok := d.tools[toolName]
	if !ok {
		return Failure(KindNotFound, "unknown tool %q", toolName)
	}

	decision := d.engine.Gate(ctx, guardrail.Request{
		SessionID: sessionID,
		Tool:      toolName,
		Input:     rawInput,
		Op: func(ctx context.Context, st *session.State, _ string) (any, error) {
			if err := util.ValidateParameters(args, t.Parameters()); err != nil {
				return Failure(KindValidationError, "invalid arguments: %v", err), nil
			}
			return t.Call(ctx, st, args)
		},
	})

	res := d.fromDecision(decision)
	d.logger.Debug("tool dispatched",
		"tool", toolName,
		"outcome", string(decision.Outcome),
		"kind", string(res.Kind),
	)
	return res
}

// fromDecision maps a gate decision onto the closed result kinds.
func (d *Dispatcher) fromDecision(decision guardrail.Decision) *Result {
	switch decision.Outcome {
	case guardrail.OutcomeBlocked:
		res := Failure(KindBlocked, "this session is blocked: %s", decision.Reason)
		res.Code = decision.Code
		return res
	case guardrail.OutcomeRejected:
		res := Failure(KindRejected, "%s", decision.Reason)
		res.Code = decision.Code
		if decision.Code == guardrail.CodeRateLimited {
			res.RetryAfterSeconds = int64(decision.RetryAfter / time.Second)
			if res.RetryAfterSeconds == 0 && decision.RetryAfter > 0 {
				res.RetryAfterSeconds = 1
			}
		}
		return res
	case guardrail.OutcomeTransient:
		return Failure(KindTransientError, "temporary failure, please try again")
	}

	res, ok := decision.Result.(*Result)
	if !ok {
		// A tool returned something other than *Result; treat it as an
		// infrastructure bug and fail safe.
		return Failure(KindTransientError, "temporary failure, please try again")
	}
	if decision.NeedsDisclaimer {
		res.NeedsDisclaimer = true
	}
	return res
}

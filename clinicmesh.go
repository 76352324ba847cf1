// Package clinicmesh provides a high-level façade over the session store,
// guardrail engine and guarded tool dispatcher that make up the clinic
// appointment service. Most applications interact with this package by:
//  1. Creating a ClinicMesh via New() (optionally overriding the repository,
//     limits or logger)
//  2. Serving it over MCP (mcpserver) or HTTP (httpapi), or driving it with
//     a chat model through the assistant package
//
// All defaults are safe for local development and testing; production
// deployments typically supply the SQLite repository and a structured
// logger.
package clinicmesh

import (
	"context"

	"github.com/hupe1980/clinicmesh/core"
	"github.com/hupe1980/clinicmesh/guardrail"
	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/observability"
	"github.com/hupe1980/clinicmesh/session"
	"github.com/hupe1980/clinicmesh/storage/memory"
	"github.com/hupe1980/clinicmesh/tool"
)

// Options configures the ClinicMesh instance.
type Options struct {
	// Repository backs patient lookup and appointment storage. Defaults to
	// the in-memory implementation.
	Repository core.Repository

	// GuardrailConfig tunes rate limits and blocking policy.
	GuardrailConfig guardrail.Config

	// Sink receives one audit event per guarded call, in addition to the
	// built-in metrics counters.
	Sink observability.Sink

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// ClinicMesh is the high-level façade aggregating the session store, the
// guardrail engine and the guarded tool set.
type ClinicMesh struct {
	opts       Options
	sessions   *session.Store
	engine     *guardrail.Engine
	dispatcher *tool.Dispatcher
	metrics    *observability.Metrics
}

// New creates a new ClinicMesh instance with optional overrides. Any unset
// collaborator is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *ClinicMesh {
	metrics := observability.NewMetrics()

	opts := Options{
		Repository:      memory.NewRepository(),
		GuardrailConfig: guardrail.DefaultConfig(),
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	sink := observability.Sink(metrics)
	if opts.Sink != nil {
		sink = observability.MultiSink{metrics, opts.Sink}
	}

	// The eviction hook closes over engine, which is assigned below before
	// the store can evict anything.
	var engine *guardrail.Engine
	sessions := session.NewStore(func(o *session.StoreOptions) {
		o.Logger = opts.Logger
		o.OnEvict = func(id string) { engine.Forget(id) }
	})
	engine = guardrail.NewEngine(sessions, func(o *guardrail.EngineOptions) {
		o.Config = opts.GuardrailConfig
		o.Logger = opts.Logger
		o.Sink = sink
	})

	d := tool.NewDispatcher(engine, func(o *tool.DispatcherOptions) {
		o.Logger = opts.Logger
	})
	d.Register(tool.NewVerifyUserTool(opts.Repository))
	d.Register(tool.NewListAppointmentsTool(opts.Repository))
	d.Register(tool.NewConfirmAppointmentTool(opts.Repository))
	d.Register(tool.NewCancelAppointmentTool(opts.Repository))
	d.Register(tool.NewSessionInfoTool())

	return &ClinicMesh{
		opts:       opts,
		sessions:   sessions,
		engine:     engine,
		dispatcher: d,
		metrics:    metrics,
	}
}

// Sessions returns the session store, for surfaces that expose session
// status or run the expiry janitor.
func (m *ClinicMesh) Sessions() *session.Store { return m.sessions }

// Dispatcher returns the guarded tool dispatcher.
func (m *ClinicMesh) Dispatcher() *tool.Dispatcher { return m.dispatcher }

// Metrics returns the built-in audit counters. Nil-safe only when m was
// built by New.
func (m *ClinicMesh) Metrics() *observability.Metrics { return m.metrics }

// Call dispatches one guarded tool call. It is a convenience for embedders
// that do not need a full serving surface.
func (m *ClinicMesh) Call(ctx context.Context, sessionID, toolName, rawInput string, args map[string]any) *tool.Result {
	return m.dispatcher.Dispatch(ctx, sessionID, toolName, rawInput, args)
}

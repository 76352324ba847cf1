// Package mcpserver exposes the guarded appointment tools over the Model
// Context Protocol so any MCP client can drive them. Every handler funnels
// into the dispatcher; the protocol layer adds no unguarded path.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/tool"
)

const (
	serverName    = "clinicmesh"
	serverVersion = "1.0.0"
)

// Server hosts the MCP server over a guarded tool dispatcher.
type Server struct {
	mcpServer  *mcp.Server
	dispatcher *tool.Dispatcher
	logger     logging.Logger
}

// Options configures optional collaborators of the MCP server.
type Options struct {
	Logger logging.Logger
}

// New creates an MCP server and registers the appointment tools.
func New(dispatcher *tool.Dispatcher, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		mcpServer:  mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		dispatcher: dispatcher,
		logger:     opts.Logger,
	}
	s.registerTools()
	return s
}

// VerifyUserInput identifies the patient for a session.
type VerifyUserInput struct {
	SessionID   string `json:"session_id" jsonschema:"conversation session identifier"`
	FullName    string `json:"full_name" jsonschema:"patient's full name exactly as registered"`
	DateOfBirth string `json:"date_of_birth" jsonschema:"date of birth in YYYY-MM-DD format"`
	Phone       string `json:"phone,omitempty" jsonschema:"registered phone number, if available"`
	Message     string `json:"message,omitempty" jsonschema:"original user message, screened by the content filter"`
}

// ListAppointmentsInput lists the verified patient's appointments.
type ListAppointmentsInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation session identifier"`
	Message   string `json:"message,omitempty" jsonschema:"original user message, screened by the content filter"`
}

// TransitionInput confirms or cancels an appointment, referenced by listing
// position or by id. Exactly one reference must be set.
type TransitionInput struct {
	SessionID     string `json:"session_id" jsonschema:"conversation session identifier"`
	Ordinal       int    `json:"ordinal,omitempty" jsonschema:"position of the appointment in the most recent listing, starting at 1"`
	AppointmentID int64  `json:"appointment_id,omitempty" jsonschema:"id of the appointment, as returned by listing"`
	Message       string `json:"message,omitempty" jsonschema:"original user message, screened by the content filter"`
}

// args builds the dispatch arguments, carrying only the reference the
// caller actually set so the tool can enforce exactly-one.
func (in TransitionInput) args() map[string]any {
	args := map[string]any{}
	if in.Ordinal != 0 {
		args["ordinal"] = in.Ordinal
	}
	if in.AppointmentID != 0 {
		args["appointment_id"] = in.AppointmentID
	}
	return args
}

// SessionInfoInput reports the session's redacted state.
type SessionInfoInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation session identifier"`
	Message   string `json:"message,omitempty" jsonschema:"original user message, screened by the content filter"`
}

// Outcome is the uniform MCP result shape, mirroring the tool result kinds.
type Outcome struct {
	Kind              string `json:"kind" jsonschema:"closed outcome kind"`
	Code              string `json:"code,omitempty" jsonschema:"guardrail decision code on refusals"`
	Message           string `json:"message,omitempty" jsonschema:"caller-safe explanation"`
	Data              any    `json:"data,omitempty" jsonschema:"tool payload on success"`
	NeedsDisclaimer   bool   `json:"needs_disclaimer,omitempty" jsonschema:"attach the medical disclaimer"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty" jsonschema:"seconds to wait after a rate limit"`
}

func outcomeFrom(res *tool.Result) Outcome {
	return Outcome{
		Kind:              string(res.Kind),
		Code:              res.Code,
		Message:           res.Message,
		Data:              res.Data,
		NeedsDisclaimer:   res.NeedsDisclaimer,
		RetryAfterSeconds: res.RetryAfterSeconds,
	}
}

func (s *Server) dispatch(ctx context.Context, sessionID, toolName, message string, args map[string]any) (Outcome, error) {
	if sessionID == "" {
		return Outcome{}, fmt.Errorf("session_id is required")
	}
	res := s.dispatcher.Dispatch(ctx, sessionID, toolName, message, args)
	return outcomeFrom(res), nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "verify_user",
		Description: "Verify the patient's identity for this session",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in VerifyUserInput) (*mcp.CallToolResult, Outcome, error) {
		args := map[string]any{
			"full_name":     in.FullName,
			"date_of_birth": in.DateOfBirth,
		}
		if in.Phone != "" {
			args["phone"] = in.Phone
		}
		out, err := s.dispatch(ctx, in.SessionID, "verify_user", in.Message, args)
		return nil, out, err
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_appointments",
		Description: "List the verified patient's appointments",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ListAppointmentsInput) (*mcp.CallToolResult, Outcome, error) {
		out, err := s.dispatch(ctx, in.SessionID, "list_appointments", in.Message, map[string]any{})
		return nil, out, err
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "confirm_appointment",
		Description: "Confirm an appointment by its position in the last listing or by its id",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TransitionInput) (*mcp.CallToolResult, Outcome, error) {
		out, err := s.dispatch(ctx, in.SessionID, "confirm_appointment", in.Message, in.args())
		return nil, out, err
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "cancel_appointment",
		Description: "Cancel an appointment by its position in the last listing or by its id",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TransitionInput) (*mcp.CallToolResult, Outcome, error) {
		out, err := s.dispatch(ctx, in.SessionID, "cancel_appointment", in.Message, in.args())
		return nil, out, err
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_session_info",
		Description: "Show the session's verification status and activity summary",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in SessionInfoInput) (*mcp.CallToolResult, Outcome, error) {
		out, err := s.dispatch(ctx, in.SessionID, "get_session_info", in.Message, map[string]any{})
		return nil, out, err
	})
}

// Serve runs the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting", "name", serverName, "version", serverVersion)
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return err
}

// Package httpapi exposes the guarded appointment tools over a small JSON
// HTTP API. Like the MCP surface it funnels every call through the
// dispatcher; the transport adds no unguarded path.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/clinicmesh/guardrail"
	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/observability"
	"github.com/hupe1980/clinicmesh/session"
	"github.com/hupe1980/clinicmesh/tool"
)

// Server hosts the HTTP API.
type Server struct {
	dispatcher *tool.Dispatcher
	sessions   *session.Store
	metrics    *observability.Metrics
	logger     logging.Logger
	router     chi.Router
}

// Options configures optional collaborators of the HTTP server.
type Options struct {
	// Metrics, when set, backs the /metrics endpoint.
	Metrics *observability.Metrics
	Logger  logging.Logger
}

// New creates the HTTP server and mounts its routes.
func New(dispatcher *tool.Dispatcher, sessions *session.Store, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		dispatcher: dispatcher,
		sessions:   sessions,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.handleSessionStatus)
		r.Post("/verify", s.handleVerify)
		r.Get("/appointments", s.handleList)
		r.Post("/appointments/{ordinal}/confirm", s.handleConfirm)
		r.Post("/appointments/{ordinal}/cancel", s.handleCancel)
	})

	s.router = r
	return s
}

// Handler returns the mounted router.
func (s *Server) Handler() http.Handler { return s.router }

// statusFor maps results onto HTTP status codes. Rejections split on the
// guardrail code: only rate limits answer 429.
func statusFor(res *tool.Result) int {
	switch res.Kind {
	case tool.KindSuccess:
		return http.StatusOK
	case tool.KindNotFound:
		return http.StatusNotFound
	case tool.KindNotVerified:
		return http.StatusForbidden
	case tool.KindAlreadyConfirmed, tool.KindAlreadyCancelled, tool.KindInvalidTransition:
		return http.StatusConflict
	case tool.KindRejected:
		switch res.Code {
		case guardrail.CodeRateLimited:
			return http.StatusTooManyRequests
		case guardrail.CodeNotAuthorized:
			return http.StatusForbidden
		default:
			return http.StatusBadRequest
		}
	case tool.KindBlocked:
		return http.StatusForbidden
	case tool.KindValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) writeResult(w http.ResponseWriter, res *tool.Result) {
	if res.Code == guardrail.CodeRateLimited && res.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfterSeconds, 10))
	}
	writeJSON(w, statusFor(res), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Stats(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Summary())
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	summary, err := s.sessions.Snapshot(sid)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type verifyRequest struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Phone       string `json:"phone,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	args := map[string]any{
		"full_name":     req.FullName,
		"date_of_birth": req.DateOfBirth,
	}
	if req.Phone != "" {
		args["phone"] = req.Phone
	}
	res := s.dispatcher.Dispatch(r.Context(), sid, "verify_user", req.Message, args)
	s.writeResult(w, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	res := s.dispatcher.Dispatch(r.Context(), sid, "list_appointments", r.URL.Query().Get("message"), map[string]any{})
	s.writeResult(w, res)
}

type transitionRequest struct {
	Message string `json:"message,omitempty"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, "confirm_appointment")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, "cancel_appointment")
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, toolName string) {
	sid := chi.URLParam(r, "sessionID")
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ordinal must be an integer")
		return
	}

	var req transitionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res := s.dispatcher.Dispatch(r.Context(), sid, toolName, req.Message, map[string]any{
		"ordinal": ordinal,
	})
	s.writeResult(w, res)
}

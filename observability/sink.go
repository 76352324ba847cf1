package observability

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/clinicmesh/logging"
)

// Event is the audit record for a single guarded call. It carries only
// redacted, non-identifying fields.
type Event struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	Tool           string        `json:"tool_name"`
	Outcome        string        `json:"outcome_kind"`
	Reason         string        `json:"reason,omitempty"`
	Latency        time.Duration `json:"latency"`
	ViolationCount int           `json:"violation_count"`
	At             time.Time     `json:"at"`
}

// NewEvent constructs an event with a fresh id and timestamp.
func NewEvent(sessionID, tool, outcome, reason string, latency time.Duration, violations int) Event {
	return Event{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Tool:           tool,
		Outcome:        outcome,
		Reason:         reason,
		Latency:        latency,
		ViolationCount: violations,
		At:             time.Now().UTC(),
	}
}

// Sink receives one event per guarded call. Implementations must be safe for
// concurrent use and must not block the guardrail pipeline for long.
type Sink interface {
	Emit(ev Event)
}

// SlogSink writes audit events through the logging abstraction.
type SlogSink struct {
	logger logging.Logger
}

// NewSlogSink creates a sink backed by the given logger.
func NewSlogSink(logger logging.Logger) *SlogSink {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SlogSink{logger: logger}
}

// Emit implements Sink. The reason is the only free-text field, so it is
// masked before it reaches the logger.
func (s *SlogSink) Emit(ev Event) {
	s.logger.Info("audit.guarded_call",
		"event_id", ev.ID,
		"session_id", ev.SessionID,
		"tool_name", ev.Tool,
		"outcome_kind", ev.Outcome,
		"reason", MaskPII(ev.Reason),
		"latency_ms", ev.Latency.Milliseconds(),
		"violation_count", ev.ViolationCount,
	)
}

// NopSink discards events. Useful for tests.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Metrics is an in-process counter sink for monitoring surfaces.
type Metrics struct {
	mu       sync.Mutex
	total    int64
	outcomes map[string]int64
	tools    map[string]int64
}

// NewMetrics constructs an empty metrics sink.
func NewMetrics() *Metrics {
	return &Metrics{outcomes: map[string]int64{}, tools: map[string]int64{}}
}

// Emit implements Sink.
func (m *Metrics) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.outcomes[ev.Outcome]++
	m.tools[ev.Tool]++
}

// MetricsSummary is the exported counter view.
type MetricsSummary struct {
	Total    int64            `json:"total"`
	Outcomes map[string]int64 `json:"outcomes"`
	Tools    map[string]int64 `json:"tools"`
}

// Summary returns a copy of the current counters.
func (m *Metrics) Summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MetricsSummary{Total: m.total, Outcomes: map[string]int64{}, Tools: map[string]int64{}}
	for k, v := range m.outcomes {
		out.Outcomes[k] = v
	}
	for k, v := range m.tools {
		out.Tools[k] = v
	}
	return out
}

// CaptureSink retains events in memory for assertions in tests.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (c *CaptureSink) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of the captured events.
func (c *CaptureSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

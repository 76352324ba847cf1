// Package model defines the provider-neutral chat model interface the
// assistant drives, with adapters for Anthropic and OpenAI in subpackages.
package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is one turn of the conversation. Tool messages carry the result
// of a tool call referenced by ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Request captures the normalized model input produced by the assistant.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the model's completed turn. Either Text, ToolCalls or both
// may be set.
type Response struct {
	Text         string      `json:"text,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the assistant needs to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests.
type MockModel struct {
	info    Info
	scripts []Response
	calls   []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// Script queues a response; Generate pops them in order.
func (m *MockModel) Script(resp Response) { m.scripts = append(m.scripts, resp) }

// ScriptToolCall queues a single tool call turn.
func (m *MockModel) ScriptToolCall(id, name string, args any) {
	raw, _ := json.Marshal(args)
	m.Script(Response{
		ToolCalls:    []ToolCall{{ID: id, Name: name, Arguments: raw}},
		FinishReason: "tool_calls",
	})
}

// ScriptText queues a plain text turn.
func (m *MockModel) ScriptText(text string) {
	m.Script(Response{Text: text, FinishReason: "stop"})
}

// Requests returns every request Generate has seen, for assertions.
func (m *MockModel) Requests() []Request { return m.calls }

// Generate implements Model; it replays the scripted responses.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls = append(m.calls, req)
	if len(m.scripts) == 0 {
		return nil, fmt.Errorf("mock model: no scripted response left")
	}
	resp := m.scripts[0]
	m.scripts = m.scripts[1:]
	return &resp, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

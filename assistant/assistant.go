// Package assistant drives the conversation loop: user text goes to the
// model, tool calls requested by the model are dispatched through the
// guardrail gate, and the tool results are fed back until the model
// produces a final text reply.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/clinicmesh/history"
	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/model"
	"github.com/hupe1980/clinicmesh/tool"
)

const defaultInstructions = `You are a clinic appointment assistant. You help patients view, confirm and cancel their appointments.

Rules:
- Always verify the patient's identity with verify_user before accessing appointments.
- Refer to appointments by their position in the last listing.
- Never reveal internal identifiers or other patients' information.
- You do not give medical advice. For health questions, tell the patient to speak with their doctor.`

const medicalDisclaimer = "Note: I can't give medical advice. Please discuss health questions with your doctor."

// maxToolRounds bounds the model/tool loop for a single user turn.
const maxToolRounds = 8

// Assistant orchestrates one conversation per session id. It is safe for
// concurrent use on distinct sessions; callers either thread conversation
// history through Chat themselves or let Converse keep it in the configured
// history store.
type Assistant struct {
	llm          model.Model
	dispatcher   *tool.Dispatcher
	instructions string
	history      history.Store
	logger       logging.Logger
}

// Options configures optional collaborators of the assistant.
type Options struct {
	Instructions string
	History      history.Store
	Logger       logging.Logger
}

// New creates an assistant over a model and a guarded tool dispatcher.
func New(llm model.Model, dispatcher *tool.Dispatcher, optFns ...func(o *Options)) *Assistant {
	opts := Options{
		Instructions: defaultInstructions,
		History:      history.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Assistant{
		llm:          llm,
		dispatcher:   dispatcher,
		instructions: opts.Instructions,
		history:      opts.History,
		logger:       opts.Logger,
	}
}

// Turn is the result of one user message.
type Turn struct {
	// Reply is the assistant's final text for the user.
	Reply string `json:"reply"`
	// Messages is the updated conversation history, ready for the next turn.
	Messages []model.Message `json:"messages"`
	// ToolCalls counts the guarded calls dispatched during this turn.
	ToolCalls int `json:"tool_calls"`
}

// Converse processes one user message using the stored transcript for the
// session, persisting the extended transcript on success. A turn that fails
// leaves the stored transcript untouched.
func (a *Assistant) Converse(ctx context.Context, sessionID, userText string) (*Turn, error) {
	turn, err := a.Chat(ctx, sessionID, userText, a.history.Get(sessionID))
	if err != nil {
		return nil, err
	}
	a.history.Replace(sessionID, turn.Messages)
	return turn, nil
}

// Chat processes one user message. history is the conversation so far; the
// returned Turn carries the extended history. userText is both the model
// input and the raw input the guardrail's content filter scans on every
// tool call it triggers.
func (a *Assistant) Chat(ctx context.Context, sessionID, userText string, history []model.Message) (*Turn, error) {
	messages := append(append([]model.Message{}, history...), model.Message{
		Role: model.RoleUser,
		Text: userText,
	})

	var toolCalls int
	needsDisclaimer := false

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.llm.Generate(ctx, model.Request{
			Instructions: a.instructions,
			Messages:     messages,
			Tools:        a.toolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("assistant: model call: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			reply := resp.Text
			if needsDisclaimer {
				reply = reply + "\n\n" + medicalDisclaimer
			}
			messages = append(messages, model.Message{Role: model.RoleAssistant, Text: reply})
			return &Turn{Reply: reply, Messages: messages, ToolCalls: toolCalls}, nil
		}

		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			args := map[string]any{}
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					a.logger.Warn("bad tool arguments", "tool", tc.Name, "error", err.Error())
					args = map[string]any{}
				}
			}

			res := a.dispatcher.Dispatch(ctx, sessionID, tc.Name, userText, args)
			toolCalls++
			if res.NeedsDisclaimer {
				needsDisclaimer = true
			}

			payload, err := json.Marshal(res)
			if err != nil {
				payload = []byte(`{"kind":"transient_error"}`)
			}
			messages = append(messages, model.Message{
				Role:       model.RoleTool,
				Text:       string(payload),
				ToolCallID: tc.ID,
			})

			// A blocked session ends the turn immediately; the model gets
			// no further calls on its behalf.
			if res.Kind == tool.KindBlocked {
				reply := "I'm sorry, but I can't continue this conversation. " + res.Message
				messages = append(messages, model.Message{Role: model.RoleAssistant, Text: reply})
				return &Turn{Reply: reply, Messages: messages, ToolCalls: toolCalls}, nil
			}
		}
	}

	return nil, fmt.Errorf("assistant: tool loop exceeded %d rounds", maxToolRounds)
}

func (a *Assistant) toolDefinitions() []model.ToolDefinition {
	tools := a.dispatcher.Tools()
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return defs
}

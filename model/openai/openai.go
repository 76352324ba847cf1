// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API with function/tool calling.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/clinicmesh/model"
)

// Options configure the OpenAI model adapter. Fields mirror a minimal
// subset of Chat Completion parameters.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic
// model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate adapts OpenAI Chat Completions, including tool calling, to the
// provider-neutral request and response shapes.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req)

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	ch0 := resp.Choices[0]
	out := &model.Response{
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
	}
	for _, tc := range ch0.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	out.Usage = &model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// buildParams assembles the OpenAI request including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Text))
		case model.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Text))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case model.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Text, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

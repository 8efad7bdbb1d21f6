// Package models provides agent.Model implementations.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentic-layer/sdk-go/pkg/agent"
)

// ErrNoChoices is returned when the completion carries no choices.
var ErrNoChoices = errors.New("model returned no choices")

// OpenAI talks to any OpenAI-compatible chat completions endpoint, such as a
// LiteLLM proxy.
type OpenAI struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures NewOpenAI.
type OpenAIOption func(*openai.ClientConfig)

// WithBaseURL points the client at an OpenAI-compatible API, e.g. http://litellm:4000/v1.
func WithBaseURL(u string) OpenAIOption {
	return func(c *openai.ClientConfig) {
		if u != "" {
			c.BaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openai.ClientConfig) { c.HTTPClient = hc }
}

// NewOpenAI creates a model that calls model with apiKey.
func NewOpenAI(model, apiKey string, opts ...OpenAIOption) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return o.model }

func (o *OpenAI) Generate(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	messages, err := toMessages(req)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    toTools(req.Tools),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion with %q: %w", o.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	content, err := fromMessage(resp.Choices[0].Message)
	if err != nil {
		return nil, err
	}
	return &agent.ModelResponse{Content: content}, nil
}

func toMessages(req *agent.ModelRequest) ([]openai.ChatCompletionMessage, error) {
	var out []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, c := range req.Contents {
		if c.Role == agent.RoleModel {
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.Text()}
			for _, call := range c.FunctionCalls() {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("encode arguments of %q: %w", call.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Name, Arguments: string(args)},
				})
			}
			out = append(out, msg)
			continue
		}

		// user turns carry either text or tool results
		responses := c.FunctionResponses()
		for _, r := range responses {
			body, err := json.Marshal(r.Response)
			if err != nil {
				return nil, fmt.Errorf("encode result of %q: %w", r.Name, err)
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(body),
				Name:       r.Name,
				ToolCallID: r.ID,
			})
		}
		if text := c.Text(); text != "" || len(responses) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
		}
	}
	return out, nil
}

func toTools(decls []agent.ToolDeclaration) []openai.Tool {
	if len(decls) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(decls))
	for _, d := range decls {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func fromMessage(msg openai.ChatCompletionMessage) (agent.Content, error) {
	c := agent.Content{Role: agent.RoleModel}
	if msg.Content != "" {
		c.Parts = append(c.Parts, agent.Part{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if s := strings.TrimSpace(tc.Function.Arguments); s != "" {
			if err := json.Unmarshal([]byte(s), &args); err != nil {
				return agent.Content{}, fmt.Errorf("decode arguments of %q: %w", tc.Function.Name, err)
			}
		}
		c.Parts = append(c.Parts, agent.Part{FunctionCall: &agent.FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		}})
	}
	if len(c.Parts) == 0 {
		c.Parts = []agent.Part{{Text: ""}}
	}
	return c, nil
}

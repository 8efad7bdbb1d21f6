// Package agenttest provides a scripted Model for tests.
package agenttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentic-layer/sdk-go/pkg/agent"
)

type scriptedResponse struct {
	text     string
	tool     string
	args     map[string]any
	final    string
	hasFinal bool
}

// ScriptedModel answers based on the last user text. Patterns are matched as
// case-insensitive substrings, the first registered match wins.
type ScriptedModel struct {
	mu        sync.Mutex
	patterns  []string
	responses map[string]scriptedResponse
	requests  []agent.ModelRequest
	calls     int
}

// NewScriptedModel creates an empty ScriptedModel.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{responses: map[string]scriptedResponse{}}
}

func (m *ScriptedModel) Name() string { return "scripted" }

// RespondWithMessage answers matching messages with text.
func (m *ScriptedModel) RespondWithMessage(pattern, text string) {
	m.add(pattern, scriptedResponse{text: text})
}

// RespondWithToolCall answers matching messages with a call to tool. Once the
// tool result is in the conversation the model replies with final, or with a
// summary of the result when final is empty.
func (m *ScriptedModel) RespondWithToolCall(pattern, tool string, args map[string]any, final string) {
	m.add(pattern, scriptedResponse{tool: tool, args: args, final: final, hasFinal: final != ""})
}

// Reset drops all scripted responses and recorded requests.
func (m *ScriptedModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = nil
	m.responses = map[string]scriptedResponse{}
	m.requests = nil
	m.calls = 0
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []agent.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.ModelRequest(nil), m.requests...)
}

func (m *ScriptedModel) add(pattern string, r scriptedResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(pattern)
	if _, ok := m.responses[key]; !ok {
		m.patterns = append(m.patterns, key)
	}
	m.responses[key] = r
}

func (m *ScriptedModel) Generate(_ context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, *req)

	userText, toolResults := lastUserTurn(req.Contents)
	lower := strings.ToLower(userText)
	for _, p := range m.patterns {
		if !strings.Contains(lower, p) {
			continue
		}
		r := m.responses[p]
		switch {
		case r.tool == "":
			return textResponse(r.text), nil
		case len(toolResults) > 0:
			if r.hasFinal {
				return textResponse(r.final), nil
			}
			return textResponse(fmt.Sprintf("%v", toolResults[len(toolResults)-1].Response)), nil
		default:
			m.calls++
			return &agent.ModelResponse{Content: agent.Content{
				Role: agent.RoleModel,
				Parts: []agent.Part{{FunctionCall: &agent.FunctionCall{
					ID:   fmt.Sprintf("call_test%d", m.calls),
					Name: r.tool,
					Args: r.args,
				}}},
			}}, nil
		}
	}
	return textResponse("Mock response"), nil
}

// lastUserTurn returns the most recent user text and any function responses after it.
func lastUserTurn(contents []agent.Content) (string, []agent.FunctionResponse) {
	var results []agent.FunctionResponse
	for i := len(contents) - 1; i >= 0; i-- {
		c := contents[i]
		if c.Role != agent.RoleUser {
			continue
		}
		if fr := c.FunctionResponses(); len(fr) > 0 {
			results = append(fr, results...)
			continue
		}
		if text := c.Text(); text != "" {
			return text, results
		}
	}
	return "", results
}

func textResponse(text string) *agent.ModelResponse {
	return &agent.ModelResponse{Content: agent.NewTextContent(agent.RoleModel, text)}
}

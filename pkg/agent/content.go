package agent

import (
	"strings"
	"time"
)

// Role identifies who produced a Content.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is one piece of a Content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Content is a single conversation turn.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds a single-part text turn.
func NewTextContent(role Role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// Text concatenates the text parts.
func (c Content) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// FunctionCalls returns the function calls in order.
func (c Content) FunctionCalls() []FunctionCall {
	var out []FunctionCall
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			out = append(out, *p.FunctionCall)
		}
	}
	return out
}

// FunctionResponses returns the function responses in order.
func (c Content) FunctionResponses() []FunctionResponse {
	var out []FunctionResponse
	for _, p := range c.Parts {
		if p.FunctionResponse != nil {
			out = append(out, *p.FunctionResponse)
		}
	}
	return out
}

// Event is something that happened during an invocation, in order.
type Event struct {
	ID           string    `json:"id"`
	InvocationID string    `json:"invocationId"`
	Author       string    `json:"author"`
	Content      Content   `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsFinal reports whether the event ends the turn with a text reply.
func (e Event) IsFinal() bool {
	return e.Author != string(RoleUser) &&
		len(e.Content.FunctionCalls()) == 0 &&
		len(e.Content.FunctionResponses()) == 0
}

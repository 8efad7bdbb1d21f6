package agent

import "context"

// ToolDeclaration describes a callable tool to the model.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ModelRequest is one inference call.
type ModelRequest struct {
	SystemInstruction string
	Contents          []Content
	Tools             []ToolDeclaration
}

// ModelResponse is the model's next turn. It holds text, function calls, or both.
type ModelResponse struct {
	Content Content
}

// Model performs inference.
type Model interface {
	Name() string
	Generate(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}

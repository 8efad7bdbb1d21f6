package agent

import "context"

// Tool is something the model can call by name.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON schema of the arguments object.
	Schema() map[string]any
	Run(ctx context.Context, args map[string]any) (map[string]any, error)
}

// FunctionTool adapts a Go function to Tool.
type FunctionTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// NewFunctionTool creates a tool backed by fn.
func NewFunctionTool(name, description string, schema map[string]any, fn func(ctx context.Context, args map[string]any) (map[string]any, error)) *FunctionTool {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *FunctionTool) Name() string           { return t.name }
func (t *FunctionTool) Description() string    { return t.description }
func (t *FunctionTool) Schema() map[string]any { return t.schema }

func (t *FunctionTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.fn(ctx, args)
}

func declare(t Tool) ToolDeclaration {
	return ToolDeclaration{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()}
}

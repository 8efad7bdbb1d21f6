// Package agent is a minimal conversational agent runtime: a model, a set of
// tools, optional sub-agents to hand a turn over to, and a bounded loop that
// drives them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransferToolName is the synthetic tool offered when an agent has sub-agents.
const TransferToolName = "transfer_to_agent"

// DefaultMaxSteps bounds the number of model calls in one turn.
const DefaultMaxSteps = 10

var (
	ErrNoModel          = errors.New("agent has no model")
	ErrMaxStepsExceeded = errors.New("maximum number of model calls exceeded")
)

// Agent is anything that can take over a conversation turn.
type Agent interface {
	Name() string
	Description() string
	// Run handles inv and returns the final reply. Implementations emit their
	// own events, the final reply included.
	Run(ctx context.Context, inv *Invocation) (Content, error)
}

// Invocation is the state of a single user turn.
type Invocation struct {
	ID        string
	AppName   string
	SessionID string
	UserID    string
	// Input is the user message that started the turn.
	Input Content
	// History is the conversation so far, Input included.
	History []Content

	emit func(Event)
}

// NewInvocation starts a turn. emit receives events in order and may be nil.
func NewInvocation(sessionID, userID string, history []Content, input Content, emit func(Event)) *Invocation {
	h := make([]Content, 0, len(history)+1)
	h = append(h, history...)
	h = append(h, input)
	return &Invocation{
		ID:        "inv-" + uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Input:     input,
		History:   h,
		emit:      emit,
	}
}

// Emit records an event authored by author.
func (inv *Invocation) Emit(author string, c Content) Event {
	ev := Event{
		ID:           uuid.NewString(),
		InvocationID: inv.ID,
		Author:       author,
		Content:      c,
		Timestamp:    time.Now().UTC(),
	}
	if inv.emit != nil {
		inv.emit(ev)
	}
	return ev
}

// Config configures an LlmAgent.
type Config struct {
	Name        string
	Description string
	Instruction string
	Model       Model
	Tools       []Tool
	SubAgents   []Agent
	// MaxSteps defaults to DefaultMaxSteps.
	MaxSteps int
	Logger   *slog.Logger
}

// LlmAgent is an Agent driven by a Model. Tools and sub-agents may be added
// after construction; reads are safe for concurrent use.
type LlmAgent struct {
	name        string
	description string
	model       Model
	maxSteps    int
	logger      *slog.Logger

	mu          sync.RWMutex
	instruction string
	tools       []Tool
	subAgents   []Agent
}

// New creates an LlmAgent.
func New(cfg Config) *LlmAgent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &LlmAgent{
		name:        cfg.Name,
		description: cfg.Description,
		instruction: cfg.Instruction,
		model:       cfg.Model,
		maxSteps:    cfg.MaxSteps,
		logger:      cfg.Logger.With("agent", cfg.Name),
	}
	a.AddTools(cfg.Tools...)
	a.AddSubAgents(cfg.SubAgents...)
	return a
}

func (a *LlmAgent) Name() string        { return a.name }
func (a *LlmAgent) Description() string { return a.description }
func (a *LlmAgent) Model() Model        { return a.model }

func (a *LlmAgent) Instruction() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.instruction
}

// AppendInstruction adds a block to the instruction, separated by a blank line.
func (a *LlmAgent) AppendInstruction(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.instruction == "" {
		a.instruction = block
		return
	}
	a.instruction = strings.TrimRight(a.instruction, "\n") + "\n\n" + block
}

// Tools returns a copy of the tool list.
func (a *LlmAgent) Tools() []Tool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Tool(nil), a.tools...)
}

// SubAgents returns a copy of the sub-agent list.
func (a *LlmAgent) SubAgents() []Agent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Agent(nil), a.subAgents...)
}

// AddTools appends tools whose names are not registered yet and returns how many were added.
func (a *LlmAgent) AddTools(tools ...Tool) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	added := 0
	for _, t := range tools {
		if t == nil || a.toolLocked(t.Name()) != nil {
			continue
		}
		a.tools = append(a.tools, t)
		added++
	}
	return added
}

// AddSubAgents appends sub-agents whose names are not registered yet and returns how many were added.
func (a *LlmAgent) AddSubAgents(agents ...Agent) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	added := 0
	for _, s := range agents {
		if s == nil || a.subAgentLocked(s.Name()) != nil {
			continue
		}
		a.subAgents = append(a.subAgents, s)
		added++
	}
	return added
}

func (a *LlmAgent) toolLocked(name string) Tool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *LlmAgent) subAgentLocked(name string) Agent {
	for _, s := range a.subAgents {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (a *LlmAgent) snapshot() (string, []Tool, []Agent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.instruction, append([]Tool(nil), a.tools...), append([]Agent(nil), a.subAgents...)
}

// Run drives the model until it answers with text, calling tools and
// transferring to sub-agents as requested.
func (a *LlmAgent) Run(ctx context.Context, inv *Invocation) (Content, error) {
	if a.model == nil {
		return Content{}, ErrNoModel
	}
	instruction, tools, subAgents := a.snapshot()

	byName := make(map[string]Tool, len(tools))
	decls := make([]ToolDeclaration, 0, len(tools)+1)
	for _, t := range tools {
		byName[t.Name()] = t
		decls = append(decls, declare(t))
	}
	if len(subAgents) > 0 {
		decls = append(decls, transferDeclaration(subAgents))
	}

	history := append([]Content(nil), inv.History...)
	for step := 0; step < a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		resp, err := a.model.Generate(ctx, &ModelRequest{
			SystemInstruction: instruction,
			Contents:          history,
			Tools:             decls,
		})
		if err != nil {
			return Content{}, fmt.Errorf("model %s: %w", a.model.Name(), err)
		}
		out := resp.Content
		out.Role = RoleModel

		calls := out.FunctionCalls()
		if len(calls) == 0 {
			inv.Emit(a.name, out)
			return out, nil
		}

		inv.Emit(a.name, out)
		history = append(history, out)

		results := Content{Role: RoleUser}
		var target Agent
		for _, call := range calls {
			var response map[string]any
			if call.Name == TransferToolName {
				target, response = a.resolveTransfer(subAgents, call)
			} else {
				response = a.callTool(ctx, byName, call)
			}
			results.Parts = append(results.Parts, Part{FunctionResponse: &FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: response,
			}})
		}
		inv.Emit(a.name, results)
		history = append(history, results)

		if target != nil {
			a.logger.InfoContext(ctx, "transferring turn", "to", target.Name())
			sub := *inv
			sub.History = history
			return target.Run(ctx, &sub)
		}
	}
	return Content{}, fmt.Errorf("%s: %w (%d)", a.name, ErrMaxStepsExceeded, a.maxSteps)
}

func (a *LlmAgent) callTool(ctx context.Context, tools map[string]Tool, call FunctionCall) map[string]any {
	t, ok := tools[call.Name]
	if !ok {
		a.logger.WarnContext(ctx, "model called unknown tool", "tool", call.Name)
		return map[string]any{"error": fmt.Sprintf("tool %q not found", call.Name)}
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	start := time.Now()
	res, err := t.Run(ctx, args)
	if err != nil {
		a.logger.WarnContext(ctx, "tool call failed", "tool", call.Name, "error", err, "duration", time.Since(start))
		return map[string]any{"error": err.Error()}
	}
	a.logger.DebugContext(ctx, "tool call finished", "tool", call.Name, "duration", time.Since(start))
	if res == nil {
		res = map[string]any{}
	}
	return res
}

func (a *LlmAgent) resolveTransfer(subAgents []Agent, call FunctionCall) (Agent, map[string]any) {
	name, _ := call.Args["agent_name"].(string)
	for _, s := range subAgents {
		if s.Name() == name {
			return s, map[string]any{"result": "transferred to " + name}
		}
	}
	return nil, map[string]any{"error": fmt.Sprintf("agent %q not found", name)}
}

func transferDeclaration(subAgents []Agent) ToolDeclaration {
	names := make([]any, 0, len(subAgents))
	var b strings.Builder
	b.WriteString("Transfer the conversation to another agent. Available agents:")
	for _, s := range subAgents {
		names = append(names, s.Name())
		b.WriteString("\n- " + s.Name())
		if d := s.Description(); d != "" {
			b.WriteString(": " + d)
		}
	}
	return ToolDeclaration{
		Name:        TransferToolName,
		Description: b.String(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_name": map[string]any{"type": "string", "enum": names},
			},
			"required": []any{"agent_name"},
		},
	}
}

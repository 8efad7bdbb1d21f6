package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/internal/telemetry"
	"github.com/agentic-layer/sdk-go/pkg/agent"
)

const (
	agentToolsHeader = "The following agents are available as tools. Call them by agent name:"
	mcpToolsHeader   = "The following tools are available. Call them by tool name:"
)

type state string

const (
	stateStart          state = "start"
	stateFetchingAgents state = "fetching_agents"
	stateFetchingTools  state = "fetching_tools"
	stateMerging        state = "merging"
	stateDone           state = "done"
	stateFailed         state = "failed"
)

// Result holds what LoadAgent attached. The toolsets are owned by the caller,
// who must close them on shutdown.
type Result struct {
	SubAgents  []agent.Agent
	AgentTools []agent.Tool
	Toolsets   []*remote.Toolset
	Tools      []ToolDescription
}

// LoadAgent resolves every descriptor and attaches the results to a. Any
// unreachable dependency fails the whole load and nothing is attached.
func (f *Factory) LoadAgent(ctx context.Context, a *agent.LlmAgent, subAgents []config.SubAgent, tools []config.McpTool) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "resolve",
		attribute.String("agent.name", a.Name()),
		attribute.Int("sub_agents", len(subAgents)),
		attribute.Int("tool_servers", len(tools)))
	defer func() { telemetry.EndSpan(span, err) }()

	current := stateStart
	transition := func(next state) {
		f.logger.DebugContext(ctx, "resolver state", "agent", a.Name(), "from", current, "to", next)
		current = next
	}
	defer func() {
		if err != nil {
			transition(stateFailed)
		}
	}()

	res = &Result{}

	transition(stateFetchingAgents)
	res.SubAgents, res.AgentTools, err = f.ResolveAgents(ctx, subAgents)
	if err != nil {
		return nil, err
	}

	transition(stateFetchingTools)
	res.Toolsets, res.Tools, err = f.ResolveTools(ctx, tools)
	if err != nil {
		return nil, err
	}

	transition(stateMerging)
	Assemble(a, res.SubAgents, res.AgentTools, res.Toolsets, res.Tools)
	transition(stateDone)

	f.logger.InfoContext(ctx, "agent dependencies resolved",
		"agent", a.Name(),
		"sub_agents", len(res.SubAgents),
		"agent_tools", len(res.AgentTools),
		"tool_servers", len(res.Toolsets),
		"tools", len(res.Tools))
	return res, nil
}

// Assemble attaches resolved dependencies to a, skipping names a already has,
// and describes the new tools in its instruction.
func Assemble(a *agent.LlmAgent, subAgents []agent.Agent, agentTools []agent.Tool, toolsets []*remote.Toolset, tools []ToolDescription) {
	a.AddSubAgents(subAgents...)

	existing := make(map[string]bool)
	for _, t := range a.Tools() {
		existing[t.Name()] = true
	}

	var agentLines []string
	for _, t := range agentTools {
		if existing[t.Name()] {
			continue
		}
		existing[t.Name()] = true
		a.AddTools(t)
		agentLines = append(agentLines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
	}

	var toolLines []string
	described := make(map[string]string, len(tools))
	for _, d := range tools {
		described[d.Server+"/"+d.Name] = d.Description
	}
	for _, ts := range toolsets {
		for _, t := range ts.Tools() {
			if existing[t.Name()] {
				continue
			}
			existing[t.Name()] = true
			a.AddTools(t)
			toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.Name(), described[ts.Name()+"/"+t.Name()]))
		}
	}

	if len(agentLines) > 0 {
		a.AppendInstruction(agentToolsHeader + "\n" + strings.Join(agentLines, "\n"))
	}
	if len(toolLines) > 0 {
		a.AppendInstruction(mcpToolsHeader + "\n" + strings.Join(toolLines, "\n"))
	}
}

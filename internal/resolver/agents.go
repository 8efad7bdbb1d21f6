package resolver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/pkg/agent"
)

// ResolveAgents fetches the card of every sub-agent. transfer descriptors become
// sub-agents and tool_call descriptors become tools. Output order follows the
// descriptors; a repeated name is resolved once.
func (f *Factory) ResolveAgents(ctx context.Context, descs []config.SubAgent) ([]agent.Agent, []agent.Tool, error) {
	descs = uniqueAgents(descs)
	resolved := make([]*remote.Agent, len(descs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, d := range descs {
		g.Go(func() error {
			card, err := f.FetchCard(gctx, d.Name, d.URL)
			if err != nil {
				return err
			}
			opts := append([]remote.AgentOption{
				remote.WithAgentHTTPClient(f.httpClient),
				remote.WithAgentLogger(f.logger),
			}, f.agentOpts...)
			a, err := remote.NewAgent(d.Name, card, opts...)
			if err != nil {
				return fmt.Errorf("resolve sub-agent %q at %s: %w", d.Name, d.URL, err)
			}
			f.logger.InfoContext(gctx, "resolved sub-agent",
				"sub_agent", d.Name, "url", card.URL, "interaction_type", d.Interaction)
			resolved[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var subAgents []agent.Agent
	var tools []agent.Tool
	for i, d := range descs {
		switch d.Interaction {
		case config.InteractionTransfer:
			subAgents = append(subAgents, resolved[i])
		default:
			tools = append(tools, remote.NewAgentTool(resolved[i]))
		}
	}
	return subAgents, tools, nil
}

func uniqueAgents(descs []config.SubAgent) []config.SubAgent {
	seen := make(map[string]bool, len(descs))
	out := make([]config.SubAgent, 0, len(descs))
	for _, d := range descs {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	return out
}

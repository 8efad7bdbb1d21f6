package resolver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/remote"
)

// ToolDescription is a discovered tool as listed in the agent instruction.
type ToolDescription struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ResolveTools introspects every tool server with a short-lived session and
// returns a toolset per server. The toolsets open their own serving session on
// first use. On error every toolset created so far is closed.
func (f *Factory) ResolveTools(ctx context.Context, descs []config.McpTool) ([]*remote.Toolset, []ToolDescription, error) {
	toolsets := make([]*remote.Toolset, len(descs))
	found := make([][]*mcp.Tool, len(descs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, d := range descs {
		opts := append([]remote.ToolsetOption{remote.WithToolsetLogger(f.logger)}, f.toolsetOpts...)
		if f.metrics != nil {
			opts = append(opts, remote.WithToolsetMetrics(f.metrics))
		}
		toolsets[i] = remote.NewToolset(d, opts...)
		g.Go(func() error {
			tools, err := f.introspect(gctx, toolsets[i])
			if err != nil {
				return fmt.Errorf("%w: failed to connect to MCP server %q at %s: %w; check that the server is running and reachable",
					ErrToolServerUnreachable, d.Name, d.URL, err)
			}
			found[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, ts := range toolsets {
			_ = ts.Close()
		}
		return nil, nil, err
	}

	var descriptions []ToolDescription
	for i, ts := range toolsets {
		ts.SetTools(found[i])
		for _, t := range found[i] {
			descriptions = append(descriptions, ToolDescription{Server: ts.Name(), Name: t.Name, Description: t.Description})
		}
	}
	return toolsets, descriptions, nil
}

func (f *Factory) introspect(ctx context.Context, ts *remote.Toolset) (tools []*mcp.Tool, err error) {
	session, err := ts.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			f.logger.WarnContext(ctx, "closing MCP introspection session failed", "tool_server", ts.Name(), "error", cerr)
		}
	}()

	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, t := range res.Tools {
			if t.Description == "" {
				f.logger.WarnContext(ctx, "MCP tool has no description", "tool_server", ts.Name(), "tool", t.Name)
			}
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
	f.logger.InfoContext(ctx, "introspected MCP server", "tool_server", ts.Name(), "url", ts.URL(), "tools", len(tools))
	return tools, nil
}

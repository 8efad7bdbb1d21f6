package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/pkg/printer"
)

var (
	toolsOutput    string
	toolsNoHeaders bool
	toolsTimeout   time.Duration
)

var ToolsCmd = &cobra.Command{
	Use:   "tools <mcp-url>",
	Short: "List the tools offered by an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runTools,
}

func init() {
	addOutputFlag(ToolsCmd, &toolsOutput)
	addNoHeadersFlag(ToolsCmd, &toolsNoHeaders)
	ToolsCmd.Flags().DurationVar(&toolsTimeout, "timeout", config.DefaultToolTimeout, "Connection timeout")
}

func runTools(cmd *cobra.Command, args []string) error {
	u, err := parseURLArg(args[0])
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd, toolsOutput)
	if err != nil {
		return err
	}

	f := resolver.NewFactory(resolver.WithLogger(slog.Default()))
	toolsets, tools, err := f.ResolveTools(cmd.Context(), []config.McpTool{{Name: u.Host, URL: u, Timeout: toolsTimeout}})
	if err != nil {
		return err
	}
	for _, ts := range toolsets {
		_ = ts.Close()
	}

	if p.Structured() {
		if tools == nil {
			tools = []resolver.ToolDescription{}
		}
		return p.Print(tools)
	}
	rows := make([][]string, 0, len(tools))
	for _, tool := range tools {
		rows = append(rows, []string{tool.Name, tool.Description})
	}
	return printer.PrintTable(cmd.OutOrStdout(), []string{"Name", "Description"}, rows, tableOptions(toolsOutput, toolsNoHeaders)...)
}

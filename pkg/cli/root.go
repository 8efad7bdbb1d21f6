// Package cli assembles the agent-runtime command tree.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-layer/sdk-go/internal/cli"
	"github.com/agentic-layer/sdk-go/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "agent-runtime",
	Short: "Agentic layer agent runtime",
	Long: `agent-runtime serves an LLM agent over A2A and wires in remote
sub-agents and MCP tool servers. It also has client commands to inspect
agents and tool servers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if cmd.Name() == cli.ServeCmd.Name() {
			return
		}
		level := "WARN"
		if verbose {
			level = "DEBUG"
		}
		logging.Setup(logging.Options{Format: os.Getenv("LOG_FORMAT"), Level: level, Writer: cmd.ErrOrStderr()})
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Verbose output")

	rootCmd.AddCommand(cli.ServeCmd)
	rootCmd.AddCommand(cli.CardCmd)
	rootCmd.AddCommand(cli.ToolsCmd)
	rootCmd.AddCommand(cli.SendCmd)
	rootCmd.AddCommand(cli.VersionCmd)
}

func Root() *cobra.Command {
	return rootCmd
}

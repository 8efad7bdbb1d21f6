package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-layer/sdk-go/internal/version"
)

var versionOutput string

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	VersionCmd.Flags().StringVarP(&versionOutput, "output", "o", "", "Output format (json, yaml)")
}

type versionInfo struct {
	Version          string `json:"version"`
	GitCommit        string `json:"gitCommit"`
	BuildDate        string `json:"buildDate"`
	AgentCardVersion string `json:"agentCardVersion"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := versionInfo{
		Version:          version.Version,
		GitCommit:        version.GitCommit,
		BuildDate:        version.BuildDate,
		AgentCardVersion: version.AgentCardVersion,
	}
	if versionOutput != "" {
		p, err := newPrinter(cmd, versionOutput)
		if err != nil {
			return err
		}
		return p.Print(info)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "agent-runtime version %s (commit %s, built %s)\n",
		info.Version, info.GitCommit, info.BuildDate)
	return err
}

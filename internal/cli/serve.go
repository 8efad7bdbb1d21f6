package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/logging"
	"github.com/agentic-layer/sdk-go/internal/server"
	"github.com/agentic-layer/sdk-go/pkg/agent"
	"github.com/agentic-layer/sdk-go/pkg/models"
)

var serveAddress string

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an agent configured from the environment",
	Long: `Builds an agent from AGENT_* variables, resolves SUB_AGENTS and
AGENT_TOOLS, and serves it over A2A until interrupted. Startup fails if any
sub-agent or tool server cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address (overrides AGENT_SERVER_ADDRESS)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.ServerAddress = serveAddress
	}
	logger := logging.Setup(logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel, Writer: cmd.ErrOrStderr()})

	model := models.NewCircuitBreaker(
		models.NewOpenAI(cfg.Model, cfg.ModelAPIKey, models.WithBaseURL(cfg.ModelAPIBase)),
		models.BreakerConfig{},
		logger,
	)
	a := agent.New(agent.Config{
		Name:        cfg.AgentName,
		Description: cfg.AgentDescription,
		Instruction: cfg.AgentInstruction,
		Model:       model,
		Logger:      logger,
	})

	app, err := server.NewFromConfig(cmd.Context(), cfg, a, logger)
	if err != nil {
		return fmt.Errorf("failed to create agent application: %w", err)
	}
	return app.Run(cmd.Context())
}

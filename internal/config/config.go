package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the agent runtime configuration.
// Variables without the AGENT_ prefix are shared with other agentic layer components.
type Config struct {
	SubAgentsJSON string `env:"SUB_AGENTS" envDefault:""`
	ToolsJSON     string `env:"AGENT_TOOLS" envDefault:""`

	AgentName        string `env:"AGENT_NAME" envDefault:"agent"`
	AgentDescription string `env:"AGENT_DESCRIPTION" envDefault:""`
	AgentInstruction string `env:"AGENT_INSTRUCTION" envDefault:"You are a helpful assistant."`
	RPCURL           string `env:"AGENT_RPC_URL" envDefault:"http://localhost:8000/"`
	ServerAddress    string `env:"AGENT_SERVER_ADDRESS" envDefault:":8000"`
	// Version is reported as service.version in metrics and traces.
	Version string `env:"AGENT_VERSION" envDefault:"dev"`

	// Model
	Model        string `env:"AGENT_MODEL" envDefault:"gpt-4o-mini"`
	ModelAPIBase string `env:"AGENT_MODEL_API_BASE" envDefault:""`
	ModelAPIKey  string `env:"AGENT_MODEL_API_KEY" envDefault:""`

	// Sessions
	DatabaseURL string        `env:"AGENT_DATABASE_URL" envDefault:""`
	SessionTTL  time.Duration `env:"AGENT_SESSION_TTL" envDefault:"1h"`

	// Resolution of sub-agents and tools at startup
	ResolveRetries int           `env:"AGENT_RESOLVE_RETRIES" envDefault:"2"`
	ResolveTimeout time.Duration `env:"AGENT_RESOLVE_TIMEOUT" envDefault:"10s"`

	EnableMetrics bool     `env:"AGENT_ENABLE_METRICS" envDefault:"true"`
	EnableTracing bool     `env:"AGENT_ENABLE_TRACING" envDefault:"false"`
	CORSOrigins   []string `env:"AGENT_CORS_ORIGINS" envSeparator:","`

	// TracingExporter is otlp or stdout. The OTLP exporter honors the OTEL_EXPORTER_OTLP_* variables.
	TracingExporter string `env:"AGENT_TRACING_EXPORTER" envDefault:"otlp"`
	TracingEndpoint string `env:"AGENT_TRACING_ENDPOINT" envDefault:""`

	LogFormat string `env:"LOG_FORMAT" envDefault:"Text"`
	LogLevel  string `env:"LOGLEVEL" envDefault:"INFO"`
}

// NewConfig loads an optional .env file and parses the environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// SubAgents parses SUB_AGENTS.
func (c *Config) SubAgents() ([]SubAgent, error) {
	return ParseSubAgents(c.SubAgentsJSON)
}

// Tools parses AGENT_TOOLS.
func (c *Config) Tools() ([]McpTool, error) {
	return ParseTools(c.ToolsJSON)
}

// Validate checks the configuration for values that can never work.
// Descriptor JSON is parsed here too, so malformed values fail before any network call.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.AgentName) == "" {
		return fmt.Errorf("%w: AGENT_NAME must not be empty", ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.RPCURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: AGENT_RPC_URL %q is not an absolute URL", ErrInvalidConfig, cfg.RPCURL)
	}
	if cfg.ResolveRetries < 0 {
		return fmt.Errorf("%w: AGENT_RESOLVE_RETRIES must not be negative", ErrInvalidConfig)
	}
	if cfg.ResolveTimeout <= 0 {
		return fmt.Errorf("%w: AGENT_RESOLVE_TIMEOUT must be positive", ErrInvalidConfig)
	}
	switch strings.ToUpper(cfg.LogFormat) {
	case "JSON", "TEXT":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be JSON or Text, got %q", ErrInvalidConfig, cfg.LogFormat)
	}
	switch cfg.TracingExporter {
	case "", "otlp", "stdout":
	default:
		return fmt.Errorf("%w: AGENT_TRACING_EXPORTER must be otlp or stdout, got %q", ErrInvalidConfig, cfg.TracingExporter)
	}
	if _, err := cfg.SubAgents(); err != nil {
		return err
	}
	if _, err := cfg.Tools(); err != nil {
		return err
	}
	return nil
}

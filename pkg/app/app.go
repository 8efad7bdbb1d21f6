// Package app exposes a locally defined agent over A2A, with remote sub-agents
// and MCP tool servers resolved at startup.
//
//	a := agent.New(agent.Config{Name: "weather_agent", Model: model})
//	application, err := app.New(a,
//		app.WithRPCURL("http://weather-agent:8000/"),
//		app.WithTools(app.McpTool{Name: "weather", URL: u, Timeout: 30 * time.Second}),
//	)
//	if err != nil {
//		return err
//	}
//	return application.Run(ctx)
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/logging"
	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/internal/server"
	"github.com/agentic-layer/sdk-go/internal/telemetry"
	"github.com/agentic-layer/sdk-go/pkg/agent"
)

// App is a runnable agent application.
type App = server.App

type (
	// SubAgent describes a remote A2A agent.
	SubAgent = config.SubAgent
	// McpTool describes a remote MCP tool server.
	McpTool = config.McpTool
	// InteractionType selects how a sub-agent is attached.
	InteractionType = config.InteractionType
)

const (
	InteractionToolCall = config.InteractionToolCall
	InteractionTransfer = config.InteractionTransfer
)

// ParseSubAgents parses the SUB_AGENTS JSON format.
func ParseSubAgents(raw string) ([]SubAgent, error) { return config.ParseSubAgents(raw) }

// ParseTools parses the AGENT_TOOLS JSON format.
func ParseTools(raw string) ([]McpTool, error) { return config.ParseTools(raw) }

type options struct {
	server         server.Options
	retries        int
	resolveTimeout time.Duration
	metrics        bool
}

// Option configures New.
type Option func(*options)

// WithRPCURL sets the public URL advertised in the agent card.
func WithRPCURL(u string) Option {
	return func(o *options) { o.server.RPCURL = u }
}

// WithAddress sets the listen address.
func WithAddress(addr string) Option {
	return func(o *options) { o.server.Address = addr }
}

func WithSubAgents(agents ...SubAgent) Option {
	return func(o *options) { o.server.SubAgents = append(o.server.SubAgents, agents...) }
}

func WithTools(tools ...McpTool) Option {
	return func(o *options) { o.server.Tools = append(o.server.Tools, tools...) }
}

// WithSessionService replaces the in-memory session store.
func WithSessionService(s agent.SessionService) Option {
	return func(o *options) { o.server.Sessions = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.server.Logger = l }
}

// WithCORSOrigins restricts cross-origin access. All origins are allowed by default.
func WithCORSOrigins(origins ...string) Option {
	return func(o *options) { o.server.CORSOrigins = origins }
}

// WithResolveRetry sets how often a sub-agent card fetch is retried and the per-attempt timeout.
func WithResolveRetry(retries int, timeout time.Duration) Option {
	return func(o *options) {
		o.retries = retries
		o.resolveTimeout = timeout
	}
}

// WithMetrics serves Prometheus metrics at /metrics.
func WithMetrics() Option {
	return func(o *options) { o.metrics = true }
}

// New creates an App serving a. Remote dependencies are resolved by Start or Run.
func New(a *agent.LlmAgent, opts ...Option) (*App, error) {
	o := options{
		server:         server.Options{RPCURL: "http://localhost:8000/"},
		retries:        resolver.DefaultRetries,
		resolveTimeout: resolver.DefaultCardTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.server.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if o.metrics {
		shutdown, m, err := telemetry.InitMetrics(a.Name(), "")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		o.server.Metrics = m
		o.server.ShutdownHooks = append(o.server.ShutdownHooks, shutdown)
	}
	o.server.Factory = resolver.NewFactory(
		resolver.WithRetry(o.retries, resolver.DefaultRetryWaitMin, resolver.DefaultRetryWaitMax),
		resolver.WithCardTimeout(o.resolveTimeout),
		resolver.WithLogger(logger),
		resolver.WithMetrics(o.server.Metrics),
	)
	return server.New(a, o.server)
}

// FromEnv creates an App from SUB_AGENTS, AGENT_TOOLS and the other runtime
// environment variables, and installs the configured slog default.
func FromEnv(ctx context.Context, a *agent.LlmAgent) (*App, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})
	return server.NewFromConfig(ctx, cfg, a, logger)
}

package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/internal/session"
	"github.com/agentic-layer/sdk-go/internal/telemetry"
	"github.com/agentic-layer/sdk-go/internal/version"
	"github.com/agentic-layer/sdk-go/pkg/agent"
)

// NewFromConfig builds an App for a from environment configuration. It opens
// the session store and telemetry; all of them are released by App.Shutdown.
func NewFromConfig(ctx context.Context, cfg *config.Config, a *agent.LlmAgent, logger *slog.Logger) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	subAgents, err := cfg.SubAgents()
	if err != nil {
		return nil, err
	}
	tools, err := cfg.Tools()
	if err != nil {
		return nil, err
	}

	var hooks []func(context.Context) error
	release := func() {
		for _, h := range hooks {
			_ = h(context.WithoutCancel(ctx))
		}
	}

	var metrics *telemetry.Metrics
	if cfg.EnableMetrics {
		shutdown, m, err := telemetry.InitMetrics(cfg.AgentName, serviceVersion(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		metrics = m
		hooks = append(hooks, shutdown)
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:        cfg.EnableTracing,
		ServiceName:    cfg.AgentName,
		ServiceVersion: serviceVersion(cfg),
		Exporter:       cfg.TracingExporter,
		Endpoint:       cfg.TracingEndpoint,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	hooks = append(hooks, shutdownTracing)

	store, err := session.Open(ctx, cfg.DatabaseURL, cfg.SessionTTL)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if cfg.DatabaseURL != "" {
		logger.Info("using PostgreSQL session store")
	}

	factory := resolver.NewFactory(
		resolver.WithRetry(cfg.ResolveRetries, resolver.DefaultRetryWaitMin, resolver.DefaultRetryWaitMax),
		resolver.WithCardTimeout(cfg.ResolveTimeout),
		resolver.WithLogger(logger),
		resolver.WithMetrics(metrics),
	)

	app, err := New(a, Options{
		RPCURL:        cfg.RPCURL,
		Address:       cfg.ServerAddress,
		SubAgents:     subAgents,
		Tools:         tools,
		Factory:       factory,
		Sessions:      store,
		Metrics:       metrics,
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger,
		ShutdownHooks: hooks,
	})
	if err != nil {
		_ = store.Close()
		release()
		return nil, err
	}
	return app, nil
}

// serviceVersion is the deployed agent's version, falling back to the runtime build.
func serviceVersion(cfg *config.Config) string {
	if cfg.Version != "" {
		return cfg.Version
	}
	return version.Version
}

// Package server assembles an agent, its remote dependencies and the A2A
// protocol handler into a runnable HTTP application.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	a2aserver "trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/executor"
	"github.com/agentic-layer/sdk-go/internal/logging"
	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/internal/telemetry"
	"github.com/agentic-layer/sdk-go/internal/version"
	"github.com/agentic-layer/sdk-go/pkg/agent"
	"github.com/agentic-layer/sdk-go/pkg/credentials"
)

const (
	HealthPath  = "/healthz"
	VersionPath = "/version"
	MetricsPath = "/metrics"

	shutdownTimeout = 10 * time.Second
)

// ErrNotBuilt is returned by operations that need Build to have run.
var ErrNotBuilt = errors.New("app is not built")

// Options configures an App.
type Options struct {
	// RPCURL is the public URL of the JSON-RPC endpoint, advertised in the agent card.
	RPCURL string
	// Address is the listen address used by Start.
	Address string

	SubAgents []config.SubAgent
	Tools     []config.McpTool

	// Factory resolves the remote dependencies. A default factory is used when nil.
	Factory *resolver.Factory
	// Sessions stores conversation history. It is closed on shutdown when it implements io.Closer.
	Sessions agent.SessionService

	Metrics     *telemetry.Metrics
	CORSOrigins []string
	Logger      *slog.Logger

	// ShutdownHooks run last during Shutdown, for example to flush telemetry.
	ShutdownHooks []func(context.Context) error
}

// App serves one agent over A2A.
type App struct {
	agent  *agent.LlmAgent
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	built    bool
	handler  http.Handler
	card     AgentCard
	toolsets []*remote.Toolset
	server   *http.Server
	listener net.Listener

	closeOnce sync.Once
	closeErr  error
}

// New validates opts and returns an App for a. Nothing is resolved until Build or Start.
func New(a *agent.LlmAgent, opts Options) (*App, error) {
	if a == nil {
		return nil, errors.New("agent is required")
	}
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("%w: rpc url is required", config.ErrInvalidConfig)
	}
	if err := config.ValidateSubAgents(opts.SubAgents); err != nil {
		return nil, err
	}
	if err := config.ValidateTools(opts.Tools); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Address == "" {
		opts.Address = ":8000"
	}
	if opts.Factory == nil {
		opts.Factory = resolver.NewFactory(resolver.WithLogger(opts.Logger), resolver.WithMetrics(opts.Metrics))
	}
	return &App{agent: a, opts: opts, logger: opts.Logger}, nil
}

// Agent returns the served agent.
func (a *App) Agent() *agent.LlmAgent { return a.agent }

// Card returns the served agent card. It is empty before Build.
func (a *App) Card() AgentCard {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.card
}

// Build resolves remote dependencies and composes the HTTP handler. Any
// unreachable dependency aborts the build. Build is a no-op once it succeeded.
func (a *App) Build(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return nil
	}

	res, err := a.opts.Factory.LoadAgent(ctx, a.agent, a.opts.SubAgents, a.opts.Tools)
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies of agent %q: %w", a.agent.Name(), err)
	}
	a.toolsets = res.Toolsets

	runnerOpts := []agent.RunnerOption{agent.WithRunnerLogger(a.logger)}
	if a.opts.Sessions != nil {
		runnerOpts = append(runnerOpts, agent.WithSessionService(a.opts.Sessions))
	}
	exec := executor.New(agent.NewRunner(a.agent, runnerOpts...), executor.WithLogger(a.logger))

	a.card = NewAgentCard(a.agent.Name(), a.agent.Description(), a.opts.RPCURL)
	rpc, err := newA2AHandler(a.card, exec)
	if err != nil {
		_ = closeToolsets(res.Toolsets)
		a.toolsets = nil
		return err
	}

	a.handler = a.compose(rpc)
	a.built = true
	return nil
}

func newA2AHandler(card AgentCard, exec *executor.Executor) (http.Handler, error) {
	tm, err := taskmanager.NewMemoryTaskManager(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}
	srv, err := a2aserver.NewA2AServer(a2aserver.AgentCard{
		Name:               card.Name,
		Description:        card.Description,
		URL:                card.URL,
		Version:            card.Version,
		Capabilities:       a2aserver.AgentCapabilities{},
		DefaultInputModes:  card.DefaultInputModes,
		DefaultOutputModes: card.DefaultOutputModes,
		Skills:             []a2aserver.AgentSkill{},
	}, tm)
	if err != nil {
		return nil, fmt.Errorf("failed to create A2A server: %w", err)
	}
	return srv.Handler(), nil
}

// captureHeaders is the union of all headers any tool server receives.
func (a *App) captureHeaders() []string {
	var names []string
	for _, t := range a.opts.Tools {
		names = append(names, t.PropagateHeaders...)
	}
	return names
}

func (a *App) compose(rpc http.Handler) http.Handler {
	mux := http.NewServeMux()
	newHumaAPI(mux, a.agent.Name())
	mux.Handle("GET "+remote.AgentCardPath, cardHandler(a.card))
	if a.opts.Metrics != nil {
		mux.Handle(MetricsPath, a.opts.Metrics.PrometheusHandler())
	}

	interceptorOpts := []credentials.InterceptorOption{credentials.WithInterceptorLogger(a.logger)}
	if names := a.captureHeaders(); len(names) > 0 {
		interceptorOpts = append(interceptorOpts, credentials.WithCaptureHeaders(names...))
	}
	mux.Handle("/", credentials.Interceptor(interceptorOpts...)(rpc))

	quiet := []string{remote.AgentCardPath, HealthPath, MetricsPath}

	var handler http.Handler = mux
	handler = MetricTelemetryMiddleware(a.opts.Metrics, WithSkipPaths(quiet...))(handler)
	handler = logging.AccessLog(a.logger, quiet...)(handler)
	handler = otelhttp.NewHandler(handler, a.agent.Name(), otelhttp.WithFilter(func(r *http.Request) bool {
		for _, p := range quiet {
			if r.URL.Path == p {
				return false
			}
		}
		return true
	}))

	origins := a.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Type", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return corsHandler.Handler(handler)
}

// Handler returns the composed handler. It is nil before Build.
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

// Start builds the app if needed and starts listening. It returns once the
// listener is open; serving continues in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.Build(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.opts.Address, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("agent runtime listening",
		"agent", a.agent.Name(), "address", ln.Addr().String(), "rpc_url", a.opts.RPCURL,
		"version", version.Version, "commit", version.GitCommit)
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server stopped", "error", err)
		}
	}(a.server)
	return nil
}

// Addr returns the listen address once Start succeeded.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run starts the app and blocks until ctx is done or SIGINT/SIGTERM arrives,
// then shuts down. Resources are released even when Start fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startErr := a.Start(ctx)
	if startErr == nil {
		<-ctx.Done()
		a.logger.Info("shutting down agent runtime")
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	shutdownErr := a.Shutdown(sctx)
	if startErr != nil {
		// shutdown errors are already logged
		return startErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server and releases every remote connection. It is
// safe to call more than once; later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error

		a.mu.Lock()
		srv := a.server
		toolsets := a.toolsets
		a.toolsets = nil
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		}

		errs = append(errs, closeToolsets(toolsets))

		if closer, ok := a.opts.Sessions.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("session store: %w", err))
			}
		}
		for _, hook := range a.opts.ShutdownHooks {
			if err := hook(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.closeErr = errors.Join(errs...)
		if a.closeErr != nil {
			a.logger.Warn("shutdown finished with errors", "error", a.closeErr)
		}
	})
	return a.closeErr
}

func closeToolsets(toolsets []*remote.Toolset) error {
	var errs []string
	for _, ts := range toolsets {
		if err := ts.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ts.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing tool servers: %s", strings.Join(errs, "; "))
	}
	return nil
}

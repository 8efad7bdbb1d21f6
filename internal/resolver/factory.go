// Package resolver turns remote dependency descriptors into live proxies at startup
// and attaches them to the local agent.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/internal/telemetry"
)

var (
	// ErrAgentUnreachable is returned when a sub-agent's card cannot be fetched.
	ErrAgentUnreachable = errors.New("sub-agent unreachable")
	// ErrToolServerUnreachable is returned when a tool server cannot be introspected.
	ErrToolServerUnreachable = errors.New("tool server unreachable")
)

const (
	DefaultRetries      = 2
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 10 * time.Second
	DefaultCardTimeout  = 10 * time.Second
	DefaultConcurrency  = 8

	maxCardSize = 1 << 20
)

// Factory resolves sub-agents and tool servers.
type Factory struct {
	httpClient   *http.Client
	retries      int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	cardTimeout  time.Duration
	concurrency  int
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	agentOpts    []remote.AgentOption
	toolsetOpts  []remote.ToolsetOption
}

// Option configures a Factory.
type Option func(*Factory)

// WithRetry sets the number of retries after the first card fetch and the backoff bounds.
func WithRetry(retries int, waitMin, waitMax time.Duration) Option {
	return func(f *Factory) {
		f.retries = retries
		f.retryWaitMin = waitMin
		f.retryWaitMax = waitMax
	}
}

// WithCardTimeout bounds each card fetch attempt.
func WithCardTimeout(d time.Duration) Option {
	return func(f *Factory) { f.cardTimeout = d }
}

// WithHTTPClient sets the client used for card fetches and A2A calls.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.httpClient = c }
}

// WithConcurrency bounds how many descriptors are resolved at once.
func WithConcurrency(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// WithAgentOptions passes options to every remote agent proxy.
func WithAgentOptions(opts ...remote.AgentOption) Option {
	return func(f *Factory) { f.agentOpts = append(f.agentOpts, opts...) }
}

// WithToolsetOptions passes options to every MCP toolset.
func WithToolsetOptions(opts ...remote.ToolsetOption) Option {
	return func(f *Factory) { f.toolsetOpts = append(f.toolsetOpts, opts...) }
}

// NewFactory creates a Factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		retries:      DefaultRetries,
		retryWaitMin: DefaultRetryWaitMin,
		retryWaitMax: DefaultRetryWaitMax,
		cardTimeout:  DefaultCardTimeout,
		concurrency:  DefaultConcurrency,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return f
}

// retryClient builds a card-fetch client whose attempts are attributed to name.
func (f *Factory) retryClient(name string) *retryablehttp.Client {
	hc := *f.httpClient
	hc.Timeout = f.cardTimeout

	c := retryablehttp.NewClient()
	c.HTTPClient = &hc
	c.RetryMax = f.retries
	c.RetryWaitMin = f.retryWaitMin
	c.RetryWaitMax = f.retryWaitMax
	c.Logger = f.logger
	c.CheckRetry = retryOnAnyFailure
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		f.metrics.RecordResolveAttempt(req.Context(), name)
		if attempt > 0 {
			f.logger.InfoContext(req.Context(), "retrying agent card fetch", "sub_agent", name, "attempt", attempt+1)
		}
	}
	return c
}

// retryOnAnyFailure retries transport errors and every non-2xx status. Agents
// that are still starting often answer 404 or 503 for a short while.
func retryOnAnyFailure(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return true, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return false, nil
}

// FetchCard downloads and decodes the agent card for u.
func (f *Factory) FetchCard(ctx context.Context, name string, u *url.URL) (remote.AgentCard, error) {
	cardURL := remote.CardURL(u)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return remote.AgentCard{}, fmt.Errorf("resolve sub-agent %q at %s: %w", name, cardURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.retryClient(name).Do(req)
	if err != nil {
		return remote.AgentCard{}, fmt.Errorf("resolve sub-agent %q at %s: %w: %w", name, cardURL, ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	var card remote.AgentCard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCardSize)).Decode(&card); err != nil {
		return remote.AgentCard{}, fmt.Errorf("resolve sub-agent %q at %s: %w: invalid agent card: %w", name, cardURL, ErrAgentUnreachable, err)
	}
	if card.URL == "" {
		return remote.AgentCard{}, fmt.Errorf("resolve sub-agent %q at %s: %w: agent card has no url", name, cardURL, ErrAgentUnreachable)
	}
	return card, nil
}

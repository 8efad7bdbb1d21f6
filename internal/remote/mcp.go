package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/telemetry"
	"github.com/agentic-layer/sdk-go/pkg/agent"
	"github.com/agentic-layer/sdk-go/pkg/credentials"
)

// DefaultStaleSessionRetries is how many times a failed call reopens the session and retries.
const DefaultStaleSessionRetries = 1

// ErrToolsetClosed is returned by calls made after Close.
var ErrToolsetClosed = errors.New("toolset closed")

// ClientInfo identifies this runtime to MCP servers.
var ClientInfo = &mcp.Implementation{Name: "agent-runtime", Version: "0.1.0"}

// Toolset proxies one MCP server. It owns a single long-lived client session,
// opened on first use and shared by all requests.
type Toolset struct {
	desc    config.McpTool
	client  *mcp.Client
	http    *http.Client
	retries int
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	session *mcp.ClientSession
	closed  bool
	tools   []*mcp.Tool
}

// ToolsetOption configures a Toolset.
type ToolsetOption func(*Toolset)

// WithBaseTransport sets the transport below the header-injecting layer.
func WithBaseTransport(rt http.RoundTripper) ToolsetOption {
	return func(t *Toolset) {
		t.http.Transport = credentials.NewTransport(rt, credentials.ProviderFor(t.desc.PropagateHeaders))
	}
}

// WithStaleSessionRetries sets how often a failed call reconnects and retries.
func WithStaleSessionRetries(n int) ToolsetOption {
	return func(t *Toolset) { t.retries = n }
}

// WithToolsetLogger sets the logger.
func WithToolsetLogger(l *slog.Logger) ToolsetOption {
	return func(t *Toolset) { t.logger = l.With("tool_server", t.desc.Name) }
}

// WithToolsetMetrics records call metrics.
func WithToolsetMetrics(m *telemetry.Metrics) ToolsetOption {
	return func(t *Toolset) { t.metrics = m }
}

// NewToolset creates a proxy for desc. No connection is made until Connect or CallTool.
// Every HTTP request to the server carries the headers the server is configured
// to receive, taken from the request context of the call.
func NewToolset(desc config.McpTool, opts ...ToolsetOption) *Toolset {
	t := &Toolset{
		desc:    desc,
		client:  mcp.NewClient(ClientInfo, nil),
		retries: DefaultStaleSessionRetries,
		logger:  slog.Default().With("tool_server", desc.Name),
		http: &http.Client{
			Transport: credentials.NewTransport(
				otelhttp.NewTransport(http.DefaultTransport),
				credentials.ProviderFor(desc.PropagateHeaders),
			),
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Toolset) Name() string { return t.desc.Name }

// URL returns the configured server URL.
func (t *Toolset) URL() string { return t.desc.URL.String() }

// Connect opens a new client session, independent of the shared one. The caller
// owns it and must close it. Connections are opened without request
// credentials so handshakes never carry a caller's headers.
func (t *Toolset) Connect(ctx context.Context) (*mcp.ClientSession, error) {
	ctx, cancel := context.WithTimeout(credentials.Without(ctx), t.desc.Timeout)
	defer cancel()
	transport := &mcp.StreamableClientTransport{
		Endpoint:   t.desc.URL.String(),
		HTTPClient: t.http,
	}
	return t.client.Connect(ctx, transport, nil)
}

// SetTools records the tools discovered during introspection.
func (t *Toolset) SetTools(tools []*mcp.Tool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools = append([]*mcp.Tool(nil), tools...)
}

// Tools returns one agent.Tool per discovered server tool.
func (t *Toolset) Tools() []agent.Tool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]agent.Tool, 0, len(t.tools))
	for _, tool := range t.tools {
		out = append(out, &mcpTool{set: t, tool: tool})
	}
	return out
}

// shared returns the long-lived session, opening it if needed.
func (t *Toolset) shared(ctx context.Context) (*mcp.ClientSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrToolsetClosed
	}
	if t.session != nil {
		return t.session, nil
	}
	// Detach from the caller's cancellation: the session outlives the request.
	s, err := t.Connect(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server %q at %s: %w", t.desc.Name, t.URL(), err)
	}
	t.session = s
	return s, nil
}

// discard drops stale if it is still the shared session.
func (t *Toolset) discard(ctx context.Context, stale *mcp.ClientSession) {
	t.mu.Lock()
	if t.session != stale {
		t.mu.Unlock()
		return
	}
	t.session = nil
	t.mu.Unlock()

	t.metrics.RecordReconnect(ctx, t.desc.Name)
	if err := stale.Close(); err != nil {
		t.logger.DebugContext(ctx, "closing stale MCP session failed", "error", err)
	}
}

// CallTool calls name on the server. When the call fails for a reason other than
// a protocol error answered by the server or the per-call timeout, the shared
// session is discarded and the call is retried on a fresh one.
func (t *Toolset) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		session, err := t.shared(ctx)
		if err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, t.desc.Timeout)
		res, err := session.CallTool(callCtx, &mcp.CallToolParams{Name: name, Arguments: args})
		timedOut := callCtx.Err() != nil
		cancel()
		if err == nil {
			t.metrics.RecordToolCall(ctx, t.desc.Name, name, time.Since(start).Seconds(), nil)
			return res, nil
		}
		lastErr = err

		// A call that ran out of time may still be running on the server.
		var wireErr *jsonrpc.Error
		if errors.As(err, &wireErr) || timedOut || ctx.Err() != nil {
			break
		}
		t.logger.WarnContext(ctx, "MCP call failed, reopening session",
			"tool", name, "attempt", attempt+1, "error", err)
		t.discard(ctx, session)
	}
	t.metrics.RecordToolCall(ctx, t.desc.Name, name, time.Since(start).Seconds(), lastErr)
	return nil, fmt.Errorf("MCP tool %q on %q: %w", name, t.desc.Name, lastErr)
}

// Close closes the shared session. It is safe to call more than once.
func (t *Toolset) Close() error {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.closed = true
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

type mcpTool struct {
	set  *Toolset
	tool *mcp.Tool
}

func (m *mcpTool) Name() string        { return m.tool.Name }
func (m *mcpTool) Description() string { return m.tool.Description }

func (m *mcpTool) Schema() map[string]any {
	switch s := m.tool.InputSchema.(type) {
	case map[string]any:
		return s
	case nil:
		return map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(m.tool.InputSchema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// Run returns the JSON form of the call result: content, structuredContent and isError.
func (m *mcpTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	res, err := m.set.CallTool(ctx, m.tool.Name, args)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode MCP result: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode MCP result: %w", err)
	}
	out["isError"] = res.IsError
	return out, nil
}

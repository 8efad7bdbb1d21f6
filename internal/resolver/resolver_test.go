package resolver_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/internal/remote/remotetest"
	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/pkg/agent"
	"github.com/agentic-layer/sdk-go/pkg/agent/agenttest"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func fastFactory(opts ...resolver.Option) *resolver.Factory {
	return resolver.NewFactory(append([]resolver.Option{
		resolver.WithRetry(2, time.Millisecond, 5*time.Millisecond),
		resolver.WithCardTimeout(2 * time.Second),
	}, opts...)...)
}

func newAgent() *agent.LlmAgent {
	return agent.New(agent.Config{
		Name:        "root",
		Instruction: "You are a helpful assistant.",
		Model:       agenttest.NewScriptedModel(),
	})
}

func TestFetchCardRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastFactory().FetchCard(context.Background(), "helper", mustURL(t, srv.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrAgentUnreachable)
	assert.Contains(t, err.Error(), `"helper"`)
	assert.Contains(t, err.Error(), srv.URL+remote.AgentCardPath)
	assert.Equal(t, int32(3), hits.Load(), "a retry budget of 2 means 3 attempts")
}

func TestFetchCardRecoversAfterRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, remote.AgentCardPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"helper","description":"Helps","url":"http://helper.local/"}`))
	}))
	defer srv.Close()

	card, err := fastFactory().FetchCard(context.Background(), "helper", mustURL(t, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "Helps", card.Description)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchCardRejectsInvalidCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := fastFactory().FetchCard(context.Background(), "helper", mustURL(t, srv.URL))
	assert.ErrorIs(t, err, resolver.ErrAgentUnreachable)
}

func TestResolveAgentsByInteraction(t *testing.T) {
	one := remotetest.NewAgentServer(t, "one", "First agent", func(string) string { return "1" })
	two := remotetest.NewAgentServer(t, "two", "Second agent", func(string) string { return "2" })

	subAgents, tools, err := fastFactory().ResolveAgents(context.Background(), []config.SubAgent{
		{Name: "one", URL: mustURL(t, one.URL), Interaction: config.InteractionTransfer},
		{Name: "two", URL: mustURL(t, two.URL+remote.AgentCardPath), Interaction: config.InteractionToolCall},
		{Name: "one", URL: mustURL(t, one.URL), Interaction: config.InteractionTransfer},
	})
	require.NoError(t, err)

	require.Len(t, subAgents, 1)
	assert.Equal(t, "one", subAgents[0].Name())
	assert.Equal(t, "First agent", subAgents[0].Description())

	require.Len(t, tools, 1)
	assert.Equal(t, "two", tools[0].Name())
	assert.IsType(t, &remote.AgentTool{}, tools[0])
}

func TestResolveToolsUnreachable(t *testing.T) {
	_, _, err := fastFactory().ResolveTools(context.Background(), []config.McpTool{
		{Name: "calc", URL: mustURL(t, "http://127.0.0.1:1/mcp"), Timeout: time.Second},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrToolServerUnreachable)
	assert.Contains(t, err.Error(), `failed to connect to MCP server "calc" at http://127.0.0.1:1/mcp`)
	assert.Contains(t, err.Error(), "check that the server is running and reachable")
}

func TestResolveTools(t *testing.T) {
	srv := remotetest.NewCalcServer(t)

	toolsets, descriptions, err := fastFactory().ResolveTools(context.Background(), []config.McpTool{
		{Name: "calc", URL: mustURL(t, srv.Endpoint()), Timeout: 5 * time.Second},
	})
	require.NoError(t, err)
	require.Len(t, toolsets, 1)
	t.Cleanup(func() { _ = toolsets[0].Close() })

	require.Len(t, descriptions, 1)
	assert.Equal(t, resolver.ToolDescription{Server: "calc", Name: "add", Description: "Add two numbers"}, descriptions[0])
	require.Len(t, toolsets[0].Tools(), 1)
}

func TestResolveToolsClosesIntrospectionSessions(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := remotetest.NewCalcServer(t)
		toolsets, _, err := fastFactory().ResolveTools(context.Background(), []config.McpTool{
			{Name: "calc", URL: mustURL(t, srv.Endpoint()), Timeout: 5 * time.Second},
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = toolsets[0].Close() })

		assert.Equal(t, 1, srv.Connects())
		assert.Equal(t, 1, srv.Closes(), "the introspection session is closed before returning")

		_, err = toolsets[0].CallTool(context.Background(), "add", map[string]any{"a": 1, "b": 2})
		require.NoError(t, err)
		assert.Equal(t, 2, srv.Connects(), "serving opens its own session on first use")
		assert.Equal(t, 1, srv.Closes())
	})

	t.Run("list failure", func(t *testing.T) {
		srv := remotetest.NewCalcServer(t, remotetest.WithFailingListTools())
		_, _, err := fastFactory().ResolveTools(context.Background(), []config.McpTool{
			{Name: "calc", URL: mustURL(t, srv.Endpoint()), Timeout: 5 * time.Second},
		})
		require.ErrorIs(t, err, resolver.ErrToolServerUnreachable)
		assert.Contains(t, err.Error(), "list tools")
		assert.Equal(t, 1, srv.Connects())
		assert.Equal(t, 1, srv.Closes())
	})
}

func TestResolveToolsLogsMissingDescriptions(t *testing.T) {
	srv := remotetest.NewCalcServer(t, remotetest.WithUndocumentedTool("noop"))

	var logs bytes.Buffer
	f := fastFactory(resolver.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	toolsets, descriptions, err := f.ResolveTools(context.Background(), []config.McpTool{
		{Name: "calc", URL: mustURL(t, srv.Endpoint()), Timeout: 5 * time.Second},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = toolsets[0].Close() })

	require.Len(t, descriptions, 2)
	assert.Len(t, toolsets[0].Tools(), 2)
	assert.Contains(t, logs.String(), "MCP tool has no description")
	assert.Contains(t, logs.String(), "tool=noop")
}

func TestLoadAgent(t *testing.T) {
	helper := remotetest.NewAgentServer(t, "helper", "Returns records", func(string) string { return "ok" })
	delegate := remotetest.NewAgentServer(t, "delegate", "Takes over", func(string) string { return "ok" })
	calc := remotetest.NewCalcServer(t)

	var logs bytes.Buffer
	f := fastFactory(resolver.WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	a := newAgent()

	subAgents := []config.SubAgent{
		{Name: "helper", URL: mustURL(t, helper.URL), Interaction: config.InteractionToolCall},
		{Name: "delegate", URL: mustURL(t, delegate.URL), Interaction: config.InteractionTransfer},
	}
	tools := []config.McpTool{{Name: "calc", URL: mustURL(t, calc.Endpoint()), Timeout: 5 * time.Second}}

	res, err := f.LoadAgent(context.Background(), a, subAgents, tools)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, ts := range res.Toolsets {
			_ = ts.Close()
		}
	})

	require.Len(t, a.SubAgents(), 1)
	names := []string{}
	for _, tool := range a.Tools() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"helper", "add"}, names)

	instruction := a.Instruction()
	assert.True(t, strings.HasPrefix(instruction, "You are a helpful assistant."))
	assert.Contains(t, instruction, "The following agents are available as tools. Call them by agent name:\n- helper: Returns records")
	assert.Contains(t, instruction, "The following tools are available. Call them by tool name:\n- add: Add two numbers")
	assert.Contains(t, logs.String(), "to=done")

	// Resolving again must not duplicate anything.
	res2, err := f.LoadAgent(context.Background(), a, subAgents, tools)
	require.NoError(t, err)
	for _, ts := range res2.Toolsets {
		_ = ts.Close()
	}
	assert.Len(t, a.SubAgents(), 1)
	assert.Len(t, a.Tools(), 2)
	assert.Equal(t, 1, strings.Count(a.Instruction(), "- helper: Returns records"))
}

func TestLoadAgentFailsWithoutAttaching(t *testing.T) {
	helper := remotetest.NewAgentServer(t, "helper", "Returns records", func(string) string { return "ok" })
	a := newAgent()

	_, err := fastFactory().LoadAgent(context.Background(), a,
		[]config.SubAgent{{Name: "helper", URL: mustURL(t, helper.URL), Interaction: config.InteractionToolCall}},
		[]config.McpTool{{Name: "calc", URL: mustURL(t, "http://127.0.0.1:1/mcp"), Timeout: time.Second}},
	)
	require.ErrorIs(t, err, resolver.ErrToolServerUnreachable)
	assert.Empty(t, a.Tools())
	assert.Equal(t, "You are a helpful assistant.", a.Instruction())
}

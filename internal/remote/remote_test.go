package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-layer/sdk-go/internal/config"
	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/internal/remote/remotetest"
	"github.com/agentic-layer/sdk-go/pkg/agent"
	"github.com/agentic-layer/sdk-go/pkg/credentials"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCardURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://helper.local", want: "http://helper.local/.well-known/agent-card.json"},
		{in: "http://helper.local/", want: "http://helper.local/.well-known/agent-card.json"},
		{in: "http://helper.local/a2a", want: "http://helper.local/a2a/.well-known/agent-card.json"},
		{in: "http://helper.local/.well-known/agent-card.json", want: "http://helper.local/.well-known/agent-card.json"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, remote.CardURL(mustURL(t, tt.in)))
		})
	}
}

func newToolset(t *testing.T, srv *remotetest.CalcServer, propagate []string) *remote.Toolset {
	t.Helper()
	ts := remote.NewToolset(config.McpTool{
		Name:             "calc",
		URL:              mustURL(t, srv.Endpoint()),
		Timeout:          5 * time.Second,
		PropagateHeaders: propagate,
	})
	t.Cleanup(func() { _ = ts.Close() })

	session, err := ts.Connect(context.Background())
	require.NoError(t, err)
	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, session.Close())
	ts.SetTools(res.Tools)
	return ts
}

func toolByName(t *testing.T, tools []agent.Tool, name string) agent.Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %q not found", name)
	return nil
}

func TestToolsetCallTool(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, nil)

	add := toolByName(t, ts.Tools(), "add")
	assert.Equal(t, "Add two numbers", add.Description())
	assert.Equal(t, "object", add.Schema()["type"])

	out, err := add.Run(context.Background(), map[string]any{"a": 5, "b": 3})
	require.NoError(t, err)

	assert.Equal(t, false, out["isError"])
	structured, ok := out["structuredContent"].(map[string]any)
	require.True(t, ok, "structuredContent missing: %v", out)
	assert.EqualValues(t, 8, structured["result"])
	content, ok := out["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0].(map[string]any)["type"])
}

func TestToolsetLegacyHeaders(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, nil)
	add := toolByName(t, ts.Tools(), "add")

	ctx := credentials.WithCredentials(context.Background(), credentials.New("secret-token", map[string]string{
		"Authorization": "Bearer abc",
	}))
	_, err := add.Run(ctx, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	headers := srv.CallHeaders()
	require.Len(t, headers, 1)
	assert.Equal(t, "secret-token", headers[0].Get("X-External-Token"))
	assert.Empty(t, headers[0].Get("Authorization"), "legacy mode forwards the token only")
}

func TestToolsetAllowListHeaders(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, []string{"Authorization", "X-Tenant-ID"})
	add := toolByName(t, ts.Tools(), "add")

	ctx := credentials.WithCredentials(context.Background(), credentials.New("secret-token", map[string]string{
		"authorization": "Bearer abc",
		"x-tenant-id":   "acme",
		"x-other":       "dropped",
	}))
	_, err := add.Run(ctx, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	headers := srv.CallHeaders()
	require.Len(t, headers, 1)
	assert.Equal(t, "Bearer abc", headers[0].Get("Authorization"))
	assert.Equal(t, "acme", headers[0].Get("X-Tenant-ID"))
	assert.Empty(t, headers[0].Get("X-Other"))
	assert.Empty(t, headers[0].Get("X-External-Token"))
}

func TestToolsetSessionCarriesNoCallerHeaders(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, nil)
	add := toolByName(t, ts.Tools(), "add")

	first := credentials.WithCredentials(context.Background(), credentials.New("token-1", nil))
	_, err := add.Run(first, map[string]any{"a": 1, "b": 1})
	require.NoError(t, err)

	// Same shared session, different caller.
	_, err = add.Run(context.Background(), map[string]any{"a": 1, "b": 1})
	require.NoError(t, err)

	headers := srv.CallHeaders()
	require.Len(t, headers, 2)
	assert.Equal(t, "token-1", headers[0].Get("X-External-Token"))
	assert.Empty(t, headers[1].Get("X-External-Token"))
}

func TestToolsetRecoversFromStaleSession(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, nil)

	_, err := ts.CallTool(context.Background(), "add", map[string]any{"a": 1, "b": 1})
	require.NoError(t, err)
	before := srv.Connects()

	srv.Restart()

	res, err := ts.CallTool(context.Background(), "add", map[string]any{"a": 2, "b": 2})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, before+1, srv.Connects(), "one new session after the restart")
}

func TestToolsetDoesNotRetryProtocolErrors(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, nil)

	_, err := ts.CallTool(context.Background(), "add", map[string]any{"a": 1, "b": 1})
	require.NoError(t, err)
	before := srv.Connects()

	_, err = ts.CallTool(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
	assert.Equal(t, before, srv.Connects())
}

func TestToolsetDoesNotRetryTimedOutCalls(t *testing.T) {
	srv := remotetest.NewCalcServer(t, remotetest.WithAddDelay(5*time.Second))
	ts := remote.NewToolset(config.McpTool{
		Name:    "calc",
		URL:     mustURL(t, srv.Endpoint()),
		Timeout: 300 * time.Millisecond,
	})
	t.Cleanup(func() { _ = ts.Close() })

	_, err := ts.CallTool(context.Background(), "add", map[string]any{"a": 1, "b": 1})
	require.Error(t, err)
	assert.Len(t, srv.Calls(), 1, "a timed out call is not sent again")
	assert.Equal(t, 1, srv.Connects())
}

func TestToolsetClose(t *testing.T) {
	srv := remotetest.NewCalcServer(t)
	ts := newToolset(t, srv, nil)

	require.NoError(t, ts.Close())
	require.NoError(t, ts.Close())

	_, err := ts.CallTool(context.Background(), "add", map[string]any{"a": 1, "b": 1})
	assert.ErrorIs(t, err, remote.ErrToolsetClosed)
}

func TestToolsetUnreachable(t *testing.T) {
	ts := remote.NewToolset(config.McpTool{
		Name:    "calc",
		URL:     mustURL(t, "http://127.0.0.1:1/mcp"),
		Timeout: time.Second,
	})
	_, err := ts.CallTool(context.Background(), "add", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"calc"`)
}

func newRemoteAgent(t *testing.T, srv *remotetest.AgentServer) *remote.Agent {
	t.Helper()
	a, err := remote.NewAgent("helper", remote.AgentCard{
		Name:        srv.Name,
		Description: srv.Description,
		URL:         srv.URL + "/",
	}, remote.WithAgentTimeout(5*time.Second))
	require.NoError(t, err)
	return a
}

func TestAgentSend(t *testing.T) {
	srv := remotetest.NewAgentServer(t, "helper_agent", "Returns records", func(text string) string {
		return "echo: " + text
	})
	a := newRemoteAgent(t, srv)

	assert.Equal(t, "helper", a.Name())
	assert.Equal(t, "Returns records", a.Description())

	reply, err := a.Send(context.Background(), "ctx-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Text)
	assert.Equal(t, "ctx-1", reqs[0].ContextID)
}

func TestAgentRunEmitsReply(t *testing.T) {
	srv := remotetest.NewAgentServer(t, "helper", "", func(string) string { return "done" })
	a := newRemoteAgent(t, srv)

	var events []agent.Event
	inv := agent.NewInvocation("session-1", "user", nil, agent.NewTextContent(agent.RoleUser, "do it"),
		func(e agent.Event) { events = append(events, e) })

	out, err := a.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Text())
	require.Len(t, events, 1)
	assert.Equal(t, "helper", events[0].Author)
	assert.Equal(t, "session-1", srv.Requests()[0].ContextID)
}

func TestAgentTool(t *testing.T) {
	srv := remotetest.NewAgentServer(t, "helper", "Helps", func(text string) string {
		return strings.ToUpper(text)
	})
	tool := remote.NewAgentTool(newRemoteAgent(t, srv))

	assert.Equal(t, "helper", tool.Name())
	assert.Equal(t, "Helps", tool.Description())

	out, err := tool.Run(context.Background(), map[string]any{"request": "abc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "ABC"}, out)

	_, err = tool.Run(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestAgentSendUnreachable(t *testing.T) {
	a, err := remote.NewAgent("helper", remote.AgentCard{URL: "http://127.0.0.1:1/"}, remote.WithAgentTimeout(time.Second))
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sub-agent "helper"`)
}

func TestAgentSendHonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	shared := &http.Client{}
	a, err := remote.NewAgent("helper", remote.AgentCard{URL: srv.URL + "/"},
		remote.WithAgentHTTPClient(shared),
		remote.WithAgentTimeout(100*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = a.Send(context.Background(), "ctx-slow", "hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, shared.Timeout, "the caller's client is left untouched")
}

func TestNewAgentRequiresURL(t *testing.T) {
	_, err := remote.NewAgent("helper", remote.AgentCard{})
	assert.Error(t, err)
}

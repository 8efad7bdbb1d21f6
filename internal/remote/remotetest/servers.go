// Package remotetest provides in-process A2A agents and MCP tool servers for tests.
package remotetest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AddInput is the argument shape of the calculator's add tool.
type AddInput struct {
	A int `json:"a" jsonschema:"first addend"`
	B int `json:"b" jsonschema:"second addend"`
}

// AddOutput is the structured result of the add tool.
type AddOutput struct {
	Result int `json:"result"`
}

// CalcServer is a streamable HTTP MCP server exposing an add tool.
// It records the headers of every tool call.
type CalcServer struct {
	*httptest.Server

	handler  atomic.Pointer[http.Handler]
	connects atomic.Int32
	closes   atomic.Int32

	undocumented  []string
	addDelay      time.Duration
	failListTools bool

	mu    sync.Mutex
	calls []AddCall
}

// AddCall is one recorded add invocation.
type AddCall struct {
	Input  AddInput
	Header http.Header
}

// CalcOption configures a CalcServer.
type CalcOption func(*CalcServer)

// WithUndocumentedTool also serves a no-op tool called name that has no description.
func WithUndocumentedTool(name string) CalcOption {
	return func(s *CalcServer) { s.undocumented = append(s.undocumented, name) }
}

// WithAddDelay makes every add call take d, or until the call is cancelled.
func WithAddDelay(d time.Duration) CalcOption {
	return func(s *CalcServer) { s.addDelay = d }
}

// WithFailingListTools answers every tools/list request with a 500.
func WithFailingListTools() CalcOption {
	return func(s *CalcServer) { s.failListTools = true }
}

// NewCalcServer starts a calculator MCP server; it is closed when the test ends.
func NewCalcServer(t testing.TB, opts ...CalcOption) *CalcServer {
	t.Helper()
	s := &CalcServer{}
	for _, opt := range opts {
		opt(s)
	}
	s.Restart()
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			s.closes.Add(1)
		case r.Method == http.MethodPost && r.Header.Get("Mcp-Session-Id") == "":
			s.connects.Add(1)
		case r.Method == http.MethodPost && s.failListTools:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if bytes.Contains(body, []byte(`"tools/list"`)) {
				http.Error(w, "listing disabled", http.StatusInternalServerError)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		(*s.handler.Load()).ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the MCP endpoint URL.
func (s *CalcServer) Endpoint() string { return s.Server.URL + "/mcp" }

// Restart replaces the MCP handler, dropping every session the server knew.
func (s *CalcServer) Restart() {
	server := mcp.NewServer(&mcp.Implementation{Name: "calc", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "add", Description: "Add two numbers"},
		func(ctx context.Context, req *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, AddOutput, error) {
			call := AddCall{Input: in, Header: http.Header{}}
			if req.Extra != nil && req.Extra.Header != nil {
				call.Header = req.Extra.Header.Clone()
			}
			s.mu.Lock()
			s.calls = append(s.calls, call)
			s.mu.Unlock()
			if s.addDelay > 0 {
				select {
				case <-time.After(s.addDelay):
				case <-ctx.Done():
					return nil, AddOutput{}, ctx.Err()
				}
			}
			return nil, AddOutput{Result: in.A + in.B}, nil
		})
	for _, name := range s.undocumented {
		mcp.AddTool(server, &mcp.Tool{Name: name},
			func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
				return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}, nil, nil
			})
	}
	var h http.Handler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	s.handler.Store(&h)
}

// Connects counts session initializations seen by the server.
func (s *CalcServer) Connects() int { return int(s.connects.Load()) }

// Closes counts sessions the client closed explicitly.
func (s *CalcServer) Closes() int { return int(s.closes.Load()) }

// Calls returns every add call so far.
func (s *CalcServer) Calls() []AddCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AddCall(nil), s.calls...)
}

// CallHeaders returns the headers of every add call so far.
func (s *CalcServer) CallHeaders() []http.Header {
	var out []http.Header
	for _, c := range s.Calls() {
		out = append(out, c.Header)
	}
	return out
}

// AgentServer is a minimal A2A agent that answers message/send with a text message.
type AgentServer struct {
	*httptest.Server

	Name        string
	Description string

	mu       sync.Mutex
	requests []AgentRequest
	reply    func(text string) string
}

// AgentRequest is one message received by an AgentServer.
type AgentRequest struct {
	Text      string
	ContextID string
	Header    http.Header
}

// NewAgentServer starts an A2A agent whose replies are produced by reply.
func NewAgentServer(t testing.TB, name, description string, reply func(text string) string) *AgentServer {
	t.Helper()
	s := &AgentServer{Name: name, Description: description, reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/agent-card.json", s.serveCard)
	mux.HandleFunc("POST /", s.serveRPC)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Requests returns the messages received so far.
func (s *AgentServer) Requests() []AgentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AgentRequest(nil), s.requests...)
}

func (s *AgentServer) serveCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":               s.Name,
		"description":        s.Description,
		"url":                s.URL + "/",
		"version":            "1.0.0",
		"capabilities":       map[string]any{},
		"defaultInputModes":  []string{"text/plain"},
		"defaultOutputModes": []string{"text/plain"},
		"skills":             []any{},
	})
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  struct {
		Message struct {
			ContextID string `json:"contextId"`
			Parts     []struct {
				Kind string `json:"kind"`
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"message"`
	} `json:"params"`
}

func (s *AgentServer) serveRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if req.Method != "message/send" {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
		return
	}

	var text string
	for _, p := range req.Params.Message.Parts {
		if p.Kind == "text" {
			text += p.Text
		}
	}
	s.mu.Lock()
	s.requests = append(s.requests, AgentRequest{Text: text, ContextID: req.Params.Message.ContextID, Header: r.Header.Clone()})
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result": map[string]any{
			"kind":      "message",
			"messageId": "reply",
			"role":      "agent",
			"contextId": req.Params.Message.ContextID,
			"parts":     []any{map[string]any{"kind": "text", "text": s.reply(text)}},
		},
	})
}

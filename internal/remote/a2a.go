package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	a2aclient "trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/agentic-layer/sdk-go/pkg/agent"
)

const (
	defaultAgentTimeout = 5 * time.Minute

	breakerMaxFailures uint32 = 5
	breakerTimeout            = 30 * time.Second
	breakerInterval           = 60 * time.Second
)

// ErrEmptyReply is returned when a remote agent answers without any text.
var ErrEmptyReply = errors.New("remote agent returned no text")

// Agent proxies a remote A2A agent. It is used directly as a transfer target
// and wrapped by AgentTool for tool_call mode.
type Agent struct {
	name    string
	card    AgentCard
	client  *a2aclient.A2AClient
	breaker *gobreaker.CircuitBreaker[*protocol.MessageResult]
	logger  *slog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*agentOptions)

type agentOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// WithAgentHTTPClient sets the HTTP client for A2A calls.
func WithAgentHTTPClient(c *http.Client) AgentOption {
	return func(o *agentOptions) { o.httpClient = c }
}

// WithAgentTimeout bounds a single A2A call.
func WithAgentTimeout(d time.Duration) AgentOption {
	return func(o *agentOptions) { o.timeout = d }
}

// WithAgentLogger sets the logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(o *agentOptions) { o.logger = l }
}

// NewAgent creates a proxy named name for the agent described by card.
// The configured name wins over the card's own name.
func NewAgent(name string, card AgentCard, opts ...AgentOption) (*Agent, error) {
	o := agentOptions{timeout: defaultAgentTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if card.URL == "" {
		return nil, fmt.Errorf("agent card for %q has no url", name)
	}

	// Copy the client so the timeout does not leak into a shared one.
	hc := &http.Client{}
	if o.httpClient != nil {
		c := *o.httpClient
		hc = &c
	}
	hc.Timeout = o.timeout
	client, err := a2aclient.NewA2AClient(card.URL, a2aclient.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client for %q: %w", name, err)
	}

	logger := o.logger.With("sub_agent", name)
	breaker := gobreaker.NewCircuitBreaker[*protocol.MessageResult](gobreaker.Settings{
		Name:        "a2a:" + name,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Agent{name: name, card: card, client: client, breaker: breaker, logger: logger}, nil
}

func (a *Agent) Name() string { return a.name }

func (a *Agent) Description() string { return a.card.Description }

// Card returns the fetched agent card.
func (a *Agent) Card() AgentCard { return a.card }

// Run forwards the user's message to the remote agent. The session ID is used
// as the A2A context ID so the remote keeps one conversation per session.
func (a *Agent) Run(ctx context.Context, inv *agent.Invocation) (agent.Content, error) {
	text, err := a.Send(ctx, inv.SessionID, inv.Input.Text())
	if err != nil {
		return agent.Content{}, err
	}
	out := agent.NewTextContent(agent.RoleModel, text)
	inv.Emit(a.name, out)
	return out, nil
}

// Send sends one message and returns the reply text.
func (a *Agent) Send(ctx context.Context, contextID, text string) (string, error) {
	if contextID == "" {
		contextID = uuid.NewString()
	}
	msg := protocol.Message{
		Kind:      "message",
		MessageID: uuid.NewString(),
		Role:      protocol.MessageRoleUser,
		Parts:     []protocol.Part{&protocol.TextPart{Kind: "text", Text: text}},
		ContextID: &contextID,
	}

	start := time.Now()
	res, err := a.breaker.Execute(func() (*protocol.MessageResult, error) {
		return a.client.SendMessage(ctx, protocol.SendMessageParams{Message: msg})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("sub-agent %q circuit open: %w", a.name, err)
		}
		return "", fmt.Errorf("sub-agent %q at %s: %w", a.name, a.card.URL, err)
	}
	a.logger.DebugContext(ctx, "sub-agent replied", "duration", time.Since(start))

	reply, err := replyText(res)
	if err != nil {
		return "", fmt.Errorf("sub-agent %q: %w", a.name, err)
	}
	return reply, nil
}

func replyText(res *protocol.MessageResult) (string, error) {
	if res == nil {
		return "", ErrEmptyReply
	}
	switch r := res.Result.(type) {
	case *protocol.Message:
		if t := partsText(r.Parts); t != "" {
			return t, nil
		}
	case *protocol.Task:
		if r.Status.State == protocol.TaskStateFailed {
			msg := "task failed"
			if r.Status.Message != nil {
				if t := partsText(r.Status.Message.Parts); t != "" {
					msg = t
				}
			}
			return "", errors.New(msg)
		}
		if r.Status.Message != nil {
			if t := partsText(r.Status.Message.Parts); t != "" {
				return t, nil
			}
		}
		for i := len(r.Artifacts) - 1; i >= 0; i-- {
			if t := partsText(r.Artifacts[i].Parts); t != "" {
				return t, nil
			}
		}
		for i := len(r.History) - 1; i >= 0; i-- {
			if r.History[i].Role != protocol.MessageRoleAgent {
				continue
			}
			if t := partsText(r.History[i].Parts); t != "" {
				return t, nil
			}
		}
	}
	return "", ErrEmptyReply
}

func partsText(parts []protocol.Part) string {
	var texts []string
	for _, p := range parts {
		if tp, ok := p.(*protocol.TextPart); ok && tp.Text != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// AgentTool exposes a remote agent as a callable tool named after the agent.
type AgentTool struct {
	agent *Agent
}

// NewAgentTool wraps a.
func NewAgentTool(a *Agent) *AgentTool {
	return &AgentTool{agent: a}
}

func (t *AgentTool) Name() string        { return t.agent.Name() }
func (t *AgentTool) Description() string { return t.agent.Description() }

// Agent returns the wrapped proxy.
func (t *AgentTool) Agent() *Agent { return t.agent }

func (t *AgentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{"type": "string"},
		},
		"required": []any{"request"},
	}
}

// Run sends args["request"] in a fresh remote conversation and returns {"result": reply}.
func (t *AgentTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	request, _ := args["request"].(string)
	if request == "" {
		return nil, fmt.Errorf("missing required argument %q", "request")
	}
	reply, err := t.agent.Send(ctx, "", request)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": reply}, nil
}

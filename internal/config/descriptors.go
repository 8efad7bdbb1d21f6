package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// InteractionType controls how a remote agent is exposed to the local agent.
type InteractionType string

const (
	// InteractionToolCall exposes the remote agent as a single callable tool.
	InteractionToolCall InteractionType = "tool_call"
	// InteractionTransfer hands the whole turn over to the remote agent.
	InteractionTransfer InteractionType = "transfer"
)

var errNotObject = errors.New("expected a JSON object")

// DefaultToolTimeout applies when a tool server has no explicit timeout.
const DefaultToolTimeout = 30 * time.Second

// maxToolTimeoutSeconds is the largest timeout a time.Duration can hold.
const maxToolTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// ParseInteractionType accepts the canonical names plus the call_as_tool and
// delegate aliases. An empty value means tool_call.
func ParseInteractionType(s string) (InteractionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tool_call", "call_as_tool":
		return InteractionToolCall, nil
	case "transfer", "delegate":
		return InteractionTransfer, nil
	default:
		return "", fmt.Errorf("%w: unknown interaction_type %q", ErrInvalidConfig, s)
	}
}

// SubAgent describes a remote A2A agent.
type SubAgent struct {
	Name        string
	URL         *url.URL
	Interaction InteractionType
}

// McpTool describes a remote MCP tool server.
type McpTool struct {
	Name    string
	URL     *url.URL
	Timeout time.Duration
	// PropagateHeaders is nil in legacy mode, where only X-External-Token is forwarded.
	PropagateHeaders []string
}

type subAgentEntry struct {
	URL             string `json:"url"`
	InteractionType string `json:"interaction_type"`
}

type toolEntry struct {
	URL              string   `json:"url"`
	Timeout          *int     `json:"timeout"`
	PropagateHeaders []string `json:"propagate_headers"`
}

// ParseSubAgents parses {"name": {"url": ..., "interaction_type": ...}}.
// Entries keep the order in which they appear in the document.
func ParseSubAgents(raw string) ([]SubAgent, error) {
	var out []SubAgent
	err := decodeOrderedObject(raw, func(name string, msg json.RawMessage) error {
		var e subAgentEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return fmt.Errorf("sub-agent %q: %w", name, err)
		}
		u, err := parseHTTPURL(e.URL)
		if err != nil {
			return fmt.Errorf("%w: sub-agent %q: %w", ErrInvalidConfig, name, err)
		}
		it, err := ParseInteractionType(e.InteractionType)
		if err != nil {
			return fmt.Errorf("sub-agent %q: %w", name, err)
		}
		out = append(out, SubAgent{Name: name, URL: u, Interaction: it})
		return nil
	})
	if err != nil {
		return nil, wrapParseError("SUB_AGENTS", raw, err)
	}
	return out, nil
}

// ParseTools parses {"name": {"url": ..., "timeout": 30, "propagate_headers": [...]}}.
func ParseTools(raw string) ([]McpTool, error) {
	var out []McpTool
	err := decodeOrderedObject(raw, func(name string, msg json.RawMessage) error {
		var e toolEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return fmt.Errorf("tool %q: %w", name, err)
		}
		u, err := parseHTTPURL(e.URL)
		if err != nil {
			return fmt.Errorf("%w: tool %q: %w", ErrInvalidConfig, name, err)
		}
		timeout := DefaultToolTimeout
		if e.Timeout != nil {
			if *e.Timeout <= 0 {
				return fmt.Errorf("%w: tool %q: timeout must be positive", ErrInvalidConfig, name)
			}
			if int64(*e.Timeout) > maxToolTimeoutSeconds {
				return fmt.Errorf("%w: tool %q: timeout must not exceed %d seconds", ErrInvalidConfig, name, maxToolTimeoutSeconds)
			}
			timeout = time.Duration(*e.Timeout) * time.Second
		}
		out = append(out, McpTool{
			Name:             name,
			URL:              u,
			Timeout:          timeout,
			PropagateHeaders: normalizeHeaderNames(e.PropagateHeaders),
		})
		return nil
	})
	if err != nil {
		return nil, wrapParseError("AGENT_TOOLS", raw, err)
	}
	return out, nil
}

// ValidateSubAgents checks descriptors built in code rather than parsed from JSON.
func ValidateSubAgents(agents []SubAgent) error {
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a.Name == "" {
			return fmt.Errorf("%w: sub-agent without a name", ErrInvalidConfig)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate sub-agent %q", ErrInvalidConfig, a.Name)
		}
		seen[a.Name] = true
		if a.URL == nil || !isHTTP(a.URL) {
			return fmt.Errorf("%w: sub-agent %q needs an absolute http(s) URL", ErrInvalidConfig, a.Name)
		}
	}
	return nil
}

// ValidateTools checks tool server descriptors built in code.
func ValidateTools(tools []McpTool) error {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return fmt.Errorf("%w: tool server without a name", ErrInvalidConfig)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate tool server %q", ErrInvalidConfig, t.Name)
		}
		seen[t.Name] = true
		if t.URL == nil || !isHTTP(t.URL) {
			return fmt.Errorf("%w: tool server %q needs an absolute http(s) URL", ErrInvalidConfig, t.Name)
		}
		if t.Timeout <= 0 {
			return fmt.Errorf("%w: tool server %q: timeout must be positive", ErrInvalidConfig, t.Name)
		}
	}
	return nil
}

func wrapParseError(variable, raw string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, errNotObject) {
		return fmt.Errorf("%w: invalid JSON in %s: %q: %w", ErrInvalidConfig, variable, raw, err)
	}
	return fmt.Errorf("%s: %w", variable, err)
}

// decodeOrderedObject walks a JSON object and calls fn for each member in document order.
// Blank input is an empty object.
func decodeOrderedObject(raw string, fn func(name string, msg json.RawMessage) error) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidConfig, name)
		}
		seen[name] = true
		if err := fn(name, msg); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return errNotObject
	}
	return nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !isHTTP(u) {
		return nil, fmt.Errorf("url %q is not an absolute http(s) URL", raw)
	}
	return u, nil
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// normalizeHeaderNames drops blanks and case-insensitive duplicates, keeping the first casing.
// A nil input stays nil so legacy mode is preserved.
func normalizeHeaderNames(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

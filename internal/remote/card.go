// Package remote holds in-process proxies for remote A2A agents and MCP tool servers.
package remote

import (
	"net/url"
	"strings"
)

// AgentCardPath is the well-known path of an A2A agent card.
const AgentCardPath = "/.well-known/agent-card.json"

// AgentCard is the subset of an A2A agent card the runtime consumes.
type AgentCard struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	URL                string         `json:"url"`
	Version            string         `json:"version,omitempty"`
	Capabilities       map[string]any `json:"capabilities,omitempty"`
	DefaultInputModes  []string       `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string       `json:"defaultOutputModes,omitempty"`
}

// CardURL returns the agent card location for a configured agent URL. URLs that
// already point at the well-known path are returned unchanged.
func CardURL(u *url.URL) string {
	if strings.HasSuffix(u.Path, AgentCardPath) {
		return u.String()
	}
	out := *u
	out.Path = strings.TrimSuffix(u.Path, "/") + AgentCardPath
	out.RawPath = ""
	return out.String()
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentic-layer/sdk-go/internal/version"
)

// AgentCard is the service description served at the well-known path.
type AgentCard struct {
	Name                              string         `json:"name"`
	Description                       string         `json:"description"`
	URL                               string         `json:"url"`
	Version                           string         `json:"version"`
	Capabilities                      map[string]any `json:"capabilities"`
	Skills                            []any          `json:"skills"`
	DefaultInputModes                 []string       `json:"defaultInputModes"`
	DefaultOutputModes                []string       `json:"defaultOutputModes"`
	SupportsAuthenticatedExtendedCard bool           `json:"supportsAuthenticatedExtendedCard"`
}

// NewAgentCard describes an agent reachable at rpcURL.
func NewAgentCard(name, description, rpcURL string) AgentCard {
	return AgentCard{
		Name:               name,
		Description:        description,
		URL:                rpcURL,
		Version:            version.AgentCardVersion,
		Capabilities:       map[string]any{},
		Skills:             []any{},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
	}
}

func cardHandler(card AgentCard) http.Handler {
	body, err := json.Marshal(card)
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}

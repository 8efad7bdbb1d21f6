package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/agentic-layer/sdk-go/internal/version"
)

// Response is a generic wrapper for Huma responses.
type Response[T any] struct {
	Body T
}

type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
	Agent  string `json:"agent" doc:"Name of the served agent"`
}

type VersionBody struct {
	Version   string `json:"version" doc:"Release version"`
	GitCommit string `json:"git_commit" doc:"Git commit"`
	BuildTime string `json:"build_time" doc:"Build timestamp"`
}

// newHumaAPI registers the operational endpoints on mux.
func newHumaAPI(mux *http.ServeMux, agentName string) huma.API {
	humaConfig := huma.DefaultConfig("Agent Runtime", version.Version)
	humaConfig.Info.Description = "Operational endpoints of an A2A agent runtime."
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.DocsPath = ""

	api := humago.New(mux, humaConfig)
	api.OpenAPI().Tags = []*huma.Tag{
		{Name: "health", Description: "Health check endpoint for monitoring service availability"},
		{Name: "version", Description: "Build and version details"},
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
		Tags:        []string{"health"},
	}, func(_ context.Context, _ *struct{}) (*Response[HealthBody], error) {
		return &Response[HealthBody]{Body: HealthBody{Status: "ok", Agent: agentName}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/version",
		Summary:     "Version information",
		Tags:        []string{"version"},
	}, func(_ context.Context, _ *struct{}) (*Response[VersionBody], error) {
		return &Response[VersionBody]{Body: VersionBody{
			Version:   version.Version,
			GitCommit: version.GitCommit,
			BuildTime: version.BuildDate,
		}}, nil
	})

	return api
}

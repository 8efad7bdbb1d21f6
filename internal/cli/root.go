// Package cli holds the agent-runtime subcommands.
package cli

import (
	"log/slog"
	"time"

	"github.com/agentic-layer/sdk-go/internal/resolver"
)

// retryFlags are shared by the commands that fetch agent cards.
type retryFlags struct {
	retries int
	timeout time.Duration
}

func (f *retryFlags) factory(logger *slog.Logger) *resolver.Factory {
	return resolver.NewFactory(
		resolver.WithRetry(f.retries, resolver.DefaultRetryWaitMin, resolver.DefaultRetryWaitMax),
		resolver.WithCardTimeout(f.timeout),
		resolver.WithLogger(logger),
	)
}

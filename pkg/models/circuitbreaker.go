package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/agentic-layer/sdk-go/pkg/agent"
)

const (
	defaultBreakerFailures uint32 = 5
	defaultBreakerTimeout         = 30 * time.Second
	defaultBreakerInterval        = 60 * time.Second
)

// BreakerConfig tunes CircuitBreaker. Zero values take the defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is let through.
	Timeout  time.Duration
	Interval time.Duration
}

// CircuitBreaker fails fast once the wrapped model keeps failing.
type CircuitBreaker struct {
	inner   agent.Model
	breaker *gobreaker.CircuitBreaker[*agent.ModelResponse]
}

// NewCircuitBreaker wraps inner.
func NewCircuitBreaker(inner agent.Model, cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[*agent.ModelResponse](gobreaker.Settings{
		Name:        "model:" + inner.Name(),
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// a cancelled turn says nothing about the model's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &CircuitBreaker{inner: inner, breaker: cb}
}

func (c *CircuitBreaker) Name() string { return c.inner.Name() }

func (c *CircuitBreaker) Generate(ctx context.Context, req *agent.ModelRequest) (*agent.ModelResponse, error) {
	resp, err := c.breaker.Execute(func() (*agent.ModelResponse, error) {
		return c.inner.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("model %q circuit open: %w", c.inner.Name(), err)
	}
	return resp, err
}

// State reports the breaker state.
func (c *CircuitBreaker) State() gobreaker.State {
	return c.breaker.State()
}

var (
	_ agent.Model = (*OpenAI)(nil)
	_ agent.Model = (*CircuitBreaker)(nil)
)

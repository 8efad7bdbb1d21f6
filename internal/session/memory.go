// Package session holds agent.SessionService implementations.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/agentic-layer/sdk-go/pkg/agent"
)

const (
	// DefaultTTL is how long an idle session is retained.
	DefaultTTL = 1 * time.Hour

	cleanupInterval = 10 * time.Minute
)

type key struct {
	app, user, id string
}

// Memory keeps sessions in process memory and drops idle ones after a TTL.
type Memory struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[key]*agent.Session

	stop     context.CancelFunc
	stopOnce sync.Once
}

// NewMemory creates an in-memory store with a background cleanup loop.
// A non-positive ttl selects DefaultTTL. Close stops the loop.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Memory{
		ttl:      ttl,
		sessions: make(map[key]*agent.Session),
		stop:     cancel,
	}
	go m.cleanupLoop(ctx)
	return m
}

// Get returns a copy of the session. Sessions idle past the TTL are missing
// even before the cleanup loop removes them.
func (m *Memory) Get(_ context.Context, appName, userID, id string) (*agent.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key{appName, userID, id}]
	if !ok || m.expired(s, time.Now().UTC()) {
		return nil, agent.ErrSessionNotFound
	}
	return clone(s), nil
}

// Save stores a copy of s.
func (m *Memory) Save(_ context.Context, s *agent.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(s)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	m.sessions[key{s.AppName, s.UserID, s.ID}] = cp
	return nil
}

// Len reports the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the cleanup loop.
func (m *Memory) Close() error {
	m.stopOnce.Do(m.stop)
	return nil
}

func (m *Memory) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(time.Now().UTC())
		}
	}
}

func (m *Memory) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, k)
		}
	}
}

func (m *Memory) expired(s *agent.Session, now time.Time) bool {
	return s.UpdatedAt.Before(now.Add(-m.ttl))
}

func clone(s *agent.Session) *agent.Session {
	cp := *s
	cp.History = append([]agent.Content(nil), s.History...)
	return &cp
}

// Store is a session service that must be closed on shutdown.
type Store interface {
	agent.SessionService
	Close() error
}

// Open returns a Postgres store when databaseURL is set and an in-memory store otherwise.
func Open(ctx context.Context, databaseURL string, ttl time.Duration) (Store, error) {
	if databaseURL == "" {
		return NewMemory(ttl), nil
	}
	p, err := NewPostgres(ctx, databaseURL, ttl)
	if err != nil {
		return nil, err
	}
	return p, nil
}

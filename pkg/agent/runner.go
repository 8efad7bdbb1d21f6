package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner executes user turns against an Agent and keeps the session history.
type Runner struct {
	appName  string
	agent    Agent
	sessions SessionService
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSessionService sets the session store. Without one, sessions are kept in memory.
func WithSessionService(s SessionService) RunnerOption {
	return func(r *Runner) { r.sessions = s }
}

// WithAppName sets the application name sessions are keyed under.
func WithAppName(name string) RunnerOption {
	return func(r *Runner) { r.appName = name }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner for a.
func NewRunner(a Agent, opts ...RunnerOption) *Runner {
	r := &Runner{appName: a.Name(), agent: a, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessions == nil {
		r.sessions = newMapSessions()
	}
	return r
}

// Agent returns the root agent.
func (r *Runner) Agent() Agent { return r.agent }

// Run executes one user turn. The returned events start with the user message
// and end with the final reply. On failure the events produced so far are
// returned together with the error, and the session is left unchanged.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, msg Content) ([]Event, error) {
	msg.Role = RoleUser

	sess, err := r.sessions.Get(ctx, r.appName, userID, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		sess = &Session{ID: sessionID, AppName: r.appName, UserID: userID}
	} else if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var (
		mu     sync.Mutex
		events []Event
	)
	inv := NewInvocation(sessionID, userID, sess.History, msg, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	inv.AppName = r.appName
	inv.Emit(string(RoleUser), msg)

	start := time.Now()
	_, runErr := r.agent.Run(ctx, inv)

	mu.Lock()
	defer mu.Unlock()
	if runErr != nil {
		r.logger.WarnContext(ctx, "agent turn failed",
			"session", sessionID, "error", runErr, "duration", time.Since(start))
		return events, runErr
	}

	for _, ev := range events {
		sess.History = append(sess.History, ev.Content)
	}
	sess.UpdatedAt = time.Now().UTC()
	if err := r.sessions.Save(ctx, sess); err != nil {
		return events, fmt.Errorf("save session %s: %w", sessionID, err)
	}
	r.logger.DebugContext(ctx, "agent turn finished",
		"session", sessionID, "events", len(events), "duration", time.Since(start))
	return events, nil
}

// mapSessions is the fallback store used when none is configured.
type mapSessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newMapSessions() *mapSessions {
	return &mapSessions{sessions: map[string]*Session{}}
}

func (m *mapSessions) Get(_ context.Context, appName, userID, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[appName+"/"+userID+"/"+id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	cp.History = append([]Content(nil), s.History...)
	return &cp, nil
}

func (m *mapSessions) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.History = append([]Content(nil), s.History...)
	m.sessions[s.AppName+"/"+s.UserID+"/"+s.ID] = &cp
	return nil
}

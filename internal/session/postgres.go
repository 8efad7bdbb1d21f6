package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentic-layer/sdk-go/pkg/agent"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS agent_sessions (
	app_name   TEXT        NOT NULL,
	user_id    TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	history    JSONB       NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (app_name, user_id, id)
)`

// Postgres stores sessions in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	ttl  time.Duration

	stop     context.CancelFunc
	stopOnce sync.Once
}

// NewPostgres connects, pings and creates the sessions table if needed.
// Sessions idle for longer than ttl are treated as missing; zero disables expiry.
func NewPostgres(ctx context.Context, connectionURI string, ttl time.Duration) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connectionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p := &Postgres{pool: pool, ttl: ttl, stop: cancel}
	go p.cleanupLoop(loopCtx)
	return p, nil
}

func (p *Postgres) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.DeleteExpired(ctx)
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("expired sessions deleted", "count", n)
			}
		}
	}
}

// Get loads a session.
func (p *Postgres) Get(ctx context.Context, appName, userID, id string) (*agent.Session, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT history, updated_at FROM agent_sessions WHERE app_name = $1 AND user_id = $2 AND id = $3`,
		appName, userID, id,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, agent.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if p.ttl > 0 && time.Since(updatedAt) > p.ttl {
		return nil, agent.ErrSessionNotFound
	}

	s := &agent.Session{ID: id, AppName: appName, UserID: userID, UpdatedAt: updatedAt.UTC()}
	if err := json.Unmarshal(raw, &s.History); err != nil {
		return nil, fmt.Errorf("failed to decode session history: %w", err)
	}
	return s, nil
}

// Save upserts a session.
func (p *Postgres) Save(ctx context.Context, s *agent.Session) error {
	history := s.History
	if history == nil {
		history = []agent.Content{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode session history: %w", err)
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO agent_sessions (app_name, user_id, id, history, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_name, user_id, id)
		DO UPDATE SET history = EXCLUDED.history, updated_at = EXCLUDED.updated_at`,
		s.AppName, s.UserID, s.ID, raw, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions idle for longer than the TTL.
func (p *Postgres) DeleteExpired(ctx context.Context) (int64, error) {
	if p.ttl <= 0 {
		return 0, nil
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM agent_sessions WHERE updated_at < $1`, time.Now().Add(-p.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close stops the cleanup loop and closes the pool.
func (p *Postgres) Close() error {
	p.stopOnce.Do(func() {
		p.stop()
		p.pool.Close()
	})
	return nil
}

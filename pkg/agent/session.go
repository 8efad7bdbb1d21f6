package agent

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by SessionService.Get for unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is the persisted conversation of one user with one app.
// It holds conversation turns only; request credentials are never stored here.
type Session struct {
	ID        string    `json:"id"`
	AppName   string    `json:"appName"`
	UserID    string    `json:"userId"`
	History   []Content `json:"history"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionService persists sessions.
type SessionService interface {
	Get(ctx context.Context, appName, userID, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

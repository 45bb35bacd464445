package session

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/game"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one game hosted for a single client.
type Session struct {
	ID        string     `json:"id"`
	State     game.State `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// UpdateFunc mutates a session in place. Returning an error discards the change.
type UpdateFunc func(s *Session) error

// Store persists sessions.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update loads the session, applies fn and writes the result atomically
	// with respect to other updates of the same session. When fn fails nothing
	// is written and the session is returned as fn left it, with fn's error.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// Recorder stores the outcome of finished games.
type Recorder interface {
	Record(ctx context.Context, sessionID string, state game.State) error
}

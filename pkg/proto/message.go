package proto

import (
	"ctchen222/TicTacToe-Classic/internal/game"
	"time"
)

// Message types
const (
	TypeMove     = "move"
	TypeReset    = "reset"
	TypeUpdate   = "update"
	TypeRejected = "rejected"
	TypeError    = "error"
	TypeClosed   = "closed"
)

// GameView is the read-only snapshot handed to clients after every operation.
type GameView struct {
	SessionID string              `json:"session_id"`
	Board     [][]game.PlayerMark `json:"board"`
	Cells     game.Board          `json:"cells"`
	Turn      game.PlayerMark     `json:"turn"`
	Status    game.Status         `json:"status"`
	Winner    game.PlayerMark     `json:"winner,omitempty"`
	Headline  string              `json:"headline"`
	TurnText  string              `json:"turn_text"`
	OpenCells []int               `json:"open_cells"`
	UpdatedAt time.Time           `json:"updated_at,omitzero"`
}

// NewGameView renders a game state for a session.
func NewGameView(sessionID string, state game.State, updatedAt time.Time) *GameView {
	return &GameView{
		SessionID: sessionID,
		Board:     state.Board.Rows(),
		Cells:     state.Board,
		Turn:      state.Turn,
		Status:    state.Status,
		Winner:    state.Winner,
		Headline:  state.Headline(),
		TurnText:  state.TurnText(),
		OpenCells: state.OpenCells(),
		UpdatedAt: updatedAt,
	}
}

// ClientToServerMessage represents a message from the client to the server.
type ClientToServerMessage struct {
	Type  string `json:"type" validate:"required,oneof=move reset"`
	Index *int   `json:"index,omitempty" validate:"required_if=Type move"`
}

// ServerToClientMessage represents a message from the server to the client.
type ServerToClientMessage struct {
	Type    string    `json:"type" validate:"required"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
	Game    *GameView `json:"game,omitempty"`
}

// MoveRequest is the body of an HTTP move.
type MoveRequest struct {
	Index *int `json:"index" binding:"required"`
}

// CreateSessionResponse is returned when a session is created.
type CreateSessionResponse struct {
	Game  *GameView `json:"game"`
	Token string    `json:"token"`
}

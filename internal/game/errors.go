package game

import (
	"errors"
	"fmt"
)

// RejectReason explains why a legal-index move was refused.
type RejectReason string

const (
	ReasonGameOver     RejectReason = "game_over"
	ReasonCellOccupied RejectReason = "cell_occupied"
)

var (
	ErrInvalidIndex = errors.New("invalid cell index")
	ErrMoveRejected = errors.New("move rejected")
	ErrGameOver     = errors.New("game already finished")
	ErrCellOccupied = errors.New("cell already occupied")
)

// MoveRejectedError is returned when a move breaks a game rule.
// It matches ErrMoveRejected and the sentinel for its reason with errors.Is.
type MoveRejectedError struct {
	Reason RejectReason
	Index  int
}

func (e *MoveRejectedError) Error() string {
	return fmt.Sprintf("move rejected at cell %d: %s", e.Index, e.Reason)
}

func (e *MoveRejectedError) Is(target error) bool {
	switch target {
	case ErrMoveRejected:
		return true
	case ErrGameOver:
		return e.Reason == ReasonGameOver
	case ErrCellOccupied:
		return e.Reason == ReasonCellOccupied
	}
	return false
}

package events

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/game"
	"encoding/json"
	"fmt"
	"time"
)

// Pub/Sub channel constants
const (
	EventsChannel = "channel:events"
)

// Event types
const (
	TypeStateChanged   = "state_changed"
	TypeSessionDeleted = "session_deleted"
)

// Event represents a global message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// StateChangedPayload is the payload for the "state_changed" event.
type StateChangedPayload struct {
	SessionID string     `json:"session_id"`
	State     game.State `json:"state"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SessionDeletedPayload is the payload for the "session_deleted" event.
type SessionDeletedPayload struct {
	SessionID string `json:"session_id"`
}

// Bus delivers events to every subscriber, across server instances when backed by Redis.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of events that is closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// New wraps payload into an event of the given type.
func New(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}

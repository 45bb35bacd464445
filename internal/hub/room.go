package hub

import (
	"context"
	"ctchen222/TicTacToe-Classic/pkg/proto"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Room groups the clients watching one session. It is owned by the hub's run loop.
type Room struct {
	ID      string
	clients map[*Client]struct{}
}

func newRoom(id string) *Room {
	return &Room{ID: id, clients: make(map[*Client]struct{})}
}

func (r *Room) add(c *Client) {
	r.clients[c] = struct{}{}
}

func (r *Room) remove(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	c.close()
	return true
}

func (r *Room) empty() bool {
	return len(r.clients) == 0
}

// Broadcast sends a message to every client in the room. Clients that cannot
// keep up are dropped.
func (r *Room) Broadcast(ctx context.Context, message *proto.ServerToClientMessage) {
	ctx, span := tracer.Start(ctx, "room.Broadcast", trace.WithAttributes(
		attribute.String("session.id", r.ID),
		attribute.String("message.type", message.Type),
		attribute.Int("client.count", len(r.clients)),
	))
	defer span.End()

	data, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error marshalling message")
		return
	}

	for c := range r.clients {
		if !c.Send(data) {
			slog.WarnContext(ctx, "Dropping slow client", "client.id", c.ID, "session.id", r.ID)
			r.remove(c)
		}
	}
}

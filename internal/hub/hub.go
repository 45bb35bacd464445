package hub

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/events"
	"ctchen222/TicTacToe-Classic/internal/game"
	"ctchen222/TicTacToe-Classic/internal/session"
	"ctchen222/TicTacToe-Classic/internal/validator"
	"ctchen222/TicTacToe-Classic/pkg/proto"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("hub")

// Reasons sent with "error" messages.
const (
	ReasonReadOnly   = "read_only"
	ReasonBadMessage = "bad_message"
	ReasonInternal   = "internal"
)

// SessionService is the part of the session manager the hub drives.
type SessionService interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	ApplyMove(ctx context.Context, id string, index int) (*session.Session, error)
	Reset(ctx context.Context, id string) (*session.Session, error)
}

// Hub tracks websocket clients per session and fans state changes out to them.
type Hub struct {
	sessions SessionService
	bus      events.Bus

	rooms      map[string]*Room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a Hub. Call Run before serving clients.
func NewHub(sessions SessionService, bus events.Bus) *Hub {
	return &Hub{
		sessions:   sessions,
		bus:        bus,
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the rooms until ctx is cancelled. Every connected client is closed on return.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	evts, err := h.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	slog.Info("Hub is running")

	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for c := range room.clients {
					room.remove(c)
				}
			}
			h.rooms = make(map[string]*Room)
			slog.Info("Hub stopped")
			return nil

		case c := <-h.register:
			h.handleRegister(ctx, c)

		case c := <-h.unregister:
			h.handleUnregister(c)

		case e, ok := <-evts:
			if !ok {
				evts = nil
				slog.Warn("Event subscription closed")
				continue
			}
			h.handleEvent(ctx, e)
		}
	}
}

// Serve registers the client and pumps its messages until the connection
// ends. It blocks for the lifetime of the connection.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.conn.Close()
		return
	}

	go c.writePump()
	h.readPump(ctx, c)
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			slog.Debug("Client disconnected", "client.id", c.ID, "session.id", c.SessionID, "error", err)
			return
		}
		h.HandleMessage(ctx, c, raw)
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	ctx, span := tracer.Start(ctx, "hub.handleRegister", trace.WithAttributes(
		attribute.String("client.id", c.ID),
		attribute.String("session.id", c.SessionID),
		attribute.Bool("client.can_control", c.CanControl),
	))
	defer span.End()

	s, err := h.sessions.Get(ctx, c.SessionID)
	if err != nil {
		reason := ReasonInternal
		if errors.Is(err, session.ErrSessionNotFound) {
			reason = "not_found"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to load session")
		}
		slog.WarnContext(ctx, "Refusing client", "client.id", c.ID, "session.id", c.SessionID, "error", err)
		send(ctx, c, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: reason})
		c.close()
		return
	}

	room, ok := h.rooms[c.SessionID]
	if !ok {
		room = newRoom(c.SessionID)
		h.rooms[c.SessionID] = room
	}
	room.add(c)
	slog.InfoContext(ctx, "Client joined session", "client.id", c.ID, "session.id", c.SessionID, "client.count", len(room.clients))

	send(ctx, c, &proto.ServerToClientMessage{
		Type: proto.TypeUpdate,
		Game: proto.NewGameView(s.ID, s.State, s.UpdatedAt),
	})
}

func (h *Hub) handleUnregister(c *Client) {
	room, ok := h.rooms[c.SessionID]
	if !ok {
		c.close()
		return
	}
	if room.remove(c) {
		slog.Info("Client left session", "client.id", c.ID, "session.id", c.SessionID)
	}
	c.close()
	if room.empty() {
		delete(h.rooms, room.ID)
	}
}

func (h *Hub) handleEvent(ctx context.Context, e events.Event) {
	switch e.Type {
	case events.TypeStateChanged:
		var payload events.StateChangedPayload
		if err := e.Decode(&payload); err != nil {
			slog.ErrorContext(ctx, "Dropping event", "error", err)
			return
		}
		room, ok := h.rooms[payload.SessionID]
		if !ok {
			return
		}
		room.Broadcast(ctx, &proto.ServerToClientMessage{
			Type: proto.TypeUpdate,
			Game: proto.NewGameView(payload.SessionID, payload.State, payload.UpdatedAt),
		})

	case events.TypeSessionDeleted:
		var payload events.SessionDeletedPayload
		if err := e.Decode(&payload); err != nil {
			slog.ErrorContext(ctx, "Dropping event", "error", err)
			return
		}
		room, ok := h.rooms[payload.SessionID]
		if !ok {
			return
		}
		room.Broadcast(ctx, &proto.ServerToClientMessage{Type: proto.TypeClosed})
		for c := range room.clients {
			room.remove(c)
		}
		delete(h.rooms, room.ID)

	default:
		slog.WarnContext(ctx, "Unknown event type", "event", e.Type)
	}
}

// HandleMessage processes one message read from a client. Accepted moves and
// resets reach every client through the event bus; refusals go to the sender only.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, raw []byte) {
	ctx, span := tracer.Start(ctx, "hub.HandleMessage", trace.WithAttributes(
		attribute.String("client.id", c.ID),
		attribute.String("session.id", c.SessionID),
	))
	defer span.End()

	var msg proto.ClientToServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		span.RecordError(err)
		send(ctx, c, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: ReasonBadMessage})
		return
	}
	if err := validator.GetValidator().Struct(msg); err != nil {
		span.RecordError(err)
		send(ctx, c, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: ReasonBadMessage, Message: validator.Describe(err)})
		return
	}
	span.SetAttributes(attribute.String("message.type", msg.Type))

	if !c.CanControl {
		send(ctx, c, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: ReasonReadOnly})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		s   *session.Session
		err error
	)
	switch msg.Type {
	case proto.TypeMove:
		s, err = h.sessions.ApplyMove(opCtx, c.SessionID, *msg.Index)
	case proto.TypeReset:
		_, err = h.sessions.Reset(opCtx, c.SessionID)
	}
	if err == nil {
		return
	}

	var rejected *game.MoveRejectedError
	switch {
	case errors.As(err, &rejected):
		send(ctx, c, rejectedMessage(string(rejected.Reason), s))
	case errors.Is(err, game.ErrInvalidIndex):
		send(ctx, c, rejectedMessage("invalid_index", s))
	case errors.Is(err, session.ErrSessionNotFound):
		send(ctx, c, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: "not_found"})
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to handle message")
		slog.ErrorContext(ctx, "Failed to handle client message", "client.id", c.ID, "session.id", c.SessionID, "error", err)
		send(ctx, c, &proto.ServerToClientMessage{Type: proto.TypeError, Reason: ReasonInternal})
	}
}

func rejectedMessage(reason string, s *session.Session) *proto.ServerToClientMessage {
	msg := &proto.ServerToClientMessage{Type: proto.TypeRejected, Reason: reason}
	if s != nil {
		msg.Game = proto.NewGameView(s.ID, s.State, s.UpdatedAt)
	}
	return msg
}

func send(ctx context.Context, c *Client, msg *proto.ServerToClientMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		return
	}
	if !c.Send(data) {
		slog.WarnContext(ctx, "Failed to queue message", "client.id", c.ID, "message.type", msg.Type)
	}
}

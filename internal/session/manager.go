package session

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/events"
	"ctchen222/TicTacToe-Classic/internal/game"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("session")
	meter  = otel.Meter("session")
)

// Manager hosts games. Every mutation goes through Store.Update, which
// serialises concurrent calls on the same session.
type Manager struct {
	store    Store
	bus      events.Bus
	recorder Recorder
	now      func() time.Time

	movesApplied  metric.Int64Counter
	movesRejected metric.Int64Counter
	gamesFinished metric.Int64Counter
}

// NewManager creates a Manager. recorder may be nil when finished games need not be kept.
func NewManager(store Store, bus events.Bus, recorder Recorder) *Manager {
	return &Manager{
		store:         store,
		bus:           bus,
		recorder:      recorder,
		now:           time.Now,
		movesApplied:  counter("game.moves.applied", "Moves placed on a board"),
		movesRejected: counter("game.moves.rejected", "Moves refused by the game rules"),
		gamesFinished: counter("game.finished", "Games that reached a win or a draw"),
	}
}

func counter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		slog.Warn("Failed to create counter", "counter", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// Create starts a new session in the initial game configuration.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session.Create")
	defer span.End()

	now := m.now()
	s := &Session{
		ID:        uuid.New().String(),
		State:     game.NewGame().Snapshot(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("session.id", s.ID))

	if err := m.store.Create(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.InfoContext(ctx, "Session created", "session.id", s.ID)
	return s, nil
}

// Get returns the current snapshot of a session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session.Get", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to get session")
		}
		return nil, err
	}
	return s, nil
}

// ApplyMove plays the current turn's mark at index. When the game rules refuse
// the move the unchanged session is returned along with the game error.
func (m *Manager) ApplyMove(ctx context.Context, id string, index int) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session.ApplyMove", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("move.index", index),
	))
	defer span.End()

	s, err := m.store.Update(ctx, id, func(s *Session) error {
		state, err := game.Restore(s.State).ApplyMove(index)
		if err != nil {
			return err
		}
		s.State = state
		s.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		if isRuleViolation(err) {
			slog.WarnContext(ctx, "Move rejected", "session.id", id, "move.index", index, "error", err)
			span.SetAttributes(attribute.Bool("move.valid", false))
			m.movesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
			return s, err
		}
		if !errors.Is(err, ErrSessionNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to apply move")
		}
		return nil, err
	}

	span.SetAttributes(attribute.Bool("move.valid", true))
	m.movesApplied.Add(ctx, 1)
	slog.DebugContext(ctx, "Move applied", "session.id", id, "move.index", index, "game.status", s.State.Status)

	if s.State.IsOver() {
		m.finish(ctx, s)
	}
	m.publishState(ctx, s)
	return s, nil
}

// Reset returns the session's game to the initial configuration.
func (m *Manager) Reset(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session.Reset", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	s, err := m.store.Update(ctx, id, func(s *Session) error {
		g := game.Restore(s.State)
		s.State = g.Reset()
		s.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to reset session")
		}
		return nil, err
	}

	slog.InfoContext(ctx, "Session reset", "session.id", id)
	m.publishState(ctx, s)
	return s, nil
}

// Delete ends a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "session.Delete", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete session")
		return fmt.Errorf("failed to delete session: %w", err)
	}

	event, err := events.New(events.TypeSessionDeleted, events.SessionDeletedPayload{SessionID: id})
	if err == nil {
		err = m.bus.Publish(ctx, event)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish session_deleted event", "session.id", id, "error", err)
	}

	slog.InfoContext(ctx, "Session deleted", "session.id", id)
	return nil
}

func (m *Manager) finish(ctx context.Context, s *Session) {
	m.gamesFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("game.status", string(s.State.Status))))
	slog.InfoContext(ctx, "Game finished", "session.id", s.ID, "game.status", s.State.Status, "game.winner", s.State.Winner)

	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, s.ID, s.State); err != nil {
		slog.ErrorContext(ctx, "Failed to record game result", "session.id", s.ID, "error", err)
	}
}

// publishState failures are logged only: the move itself is already stored.
func (m *Manager) publishState(ctx context.Context, s *Session) {
	event, err := events.New(events.TypeStateChanged, events.StateChangedPayload{SessionID: s.ID, State: s.State, UpdatedAt: s.UpdatedAt})
	if err == nil {
		err = m.bus.Publish(ctx, event)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish state_changed event", "session.id", s.ID, "error", err)
	}
}

func isRuleViolation(err error) bool {
	return errors.Is(err, game.ErrInvalidIndex) || errors.Is(err, game.ErrMoveRejected)
}

func rejectReason(err error) string {
	var rejected *game.MoveRejectedError
	if errors.As(err, &rejected) {
		return string(rejected.Reason)
	}
	return "invalid_index"
}

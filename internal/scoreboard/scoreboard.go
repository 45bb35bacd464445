package scoreboard

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/game"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scoreboard")

// Result is the outcome of one finished game.
type Result struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	Outcome    game.Status     `json:"outcome"`
	Winner     game.PlayerMark `json:"winner,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Tally counts finished games by outcome.
type Tally struct {
	XWins int `db:"x_wins" json:"x_wins"`
	OWins int `db:"o_wins" json:"o_wins"`
	Draws int `db:"draws" json:"draws"`
}

type resultRow struct {
	ID         int64  `db:"id"`
	SessionID  string `db:"session_id"`
	Outcome    string `db:"outcome"`
	Winner     string `db:"winner"`
	FinishedAt int64  `db:"finished_at"`
}

// Scoreboard keeps finished game outcomes in SQLite.
type Scoreboard struct {
	db  *sqlx.DB
	now func() time.Time
}

// New creates a Scoreboard on a database prepared by db.Connect.
func New(db *sqlx.DB) *Scoreboard {
	return &Scoreboard{db: db, now: time.Now}
}

// Record stores the outcome of a finished game.
func (s *Scoreboard) Record(ctx context.Context, sessionID string, state game.State) error {
	ctx, span := tracer.Start(ctx, "Scoreboard.Record", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("game.status", string(state.Status)),
	))
	defer span.End()

	if !state.IsOver() {
		return fmt.Errorf("cannot record game in status %s", state.Status)
	}

	query := `INSERT INTO results (session_id, outcome, winner, finished_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, sessionID, string(state.Status), string(state.Winner), s.now().UnixMilli())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert result")
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// Tally returns how many games each mark won and how many were drawn.
func (s *Scoreboard) Tally(ctx context.Context) (Tally, error) {
	ctx, span := tracer.Start(ctx, "Scoreboard.Tally")
	defer span.End()

	query := `
	SELECT
		COALESCE(SUM(CASE WHEN outcome = ? AND winner = ? THEN 1 ELSE 0 END), 0) AS x_wins,
		COALESCE(SUM(CASE WHEN outcome = ? AND winner = ? THEN 1 ELSE 0 END), 0) AS o_wins,
		COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS draws
	FROM results`

	var tally Tally
	err := s.db.GetContext(ctx, &tally, query,
		string(game.StatusWon), string(game.PlayerX),
		string(game.StatusWon), string(game.PlayerO),
		string(game.StatusDraw),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query tally")
		return Tally{}, fmt.Errorf("failed to query tally: %w", err)
	}
	return tally, nil
}

// Recent returns the latest results, newest first.
func (s *Scoreboard) Recent(ctx context.Context, limit int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Scoreboard.Recent", trace.WithAttributes(
		attribute.Int("limit", limit),
	))
	defer span.End()

	var rows []resultRow
	query := `SELECT id, session_id, outcome, winner, finished_at FROM results ORDER BY finished_at DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query results")
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, Result{
			ID:         r.ID,
			SessionID:  r.SessionID,
			Outcome:    game.Status(r.Outcome),
			Winner:     game.PlayerMark(r.Winner),
			FinishedAt: time.UnixMilli(r.FinishedAt),
		})
	}
	return results, nil
}

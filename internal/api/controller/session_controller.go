package controller

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/api/response"
	"ctchen222/TicTacToe-Classic/internal/auth"
	"ctchen222/TicTacToe-Classic/internal/game"
	"ctchen222/TicTacToe-Classic/internal/scoreboard"
	"ctchen222/TicTacToe-Classic/internal/session"
	"ctchen222/TicTacToe-Classic/pkg/proto"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const defaultRecentLimit = 20

// SessionService is the game host the controller drives.
//
//go:generate mockgen -source=session_controller.go -destination=mocks/mock_controller.go -package=mocks
type SessionService interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	ApplyMove(ctx context.Context, id string, index int) (*session.Session, error)
	Reset(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
}

// TokenAuthority issues and checks session tokens.
type TokenAuthority interface {
	Issue(sessionID string) (string, error)
	Authorize(token, sessionID string) error
}

// ResultsReader exposes finished game outcomes.
type ResultsReader interface {
	Tally(ctx context.Context) (scoreboard.Tally, error)
	Recent(ctx context.Context, limit int) ([]scoreboard.Result, error)
}

// SessionController handles game session HTTP requests.
type SessionController struct {
	sessions SessionService
	tokens   TokenAuthority
	results  ResultsReader
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessions SessionService, tokens TokenAuthority, results ResultsReader) *SessionController {
	return &SessionController{
		sessions: sessions,
		tokens:   tokens,
		results:  results,
	}
}

// Create starts a new game and returns it with the token that controls it.
func (sc *SessionController) Create(c *gin.Context) {
	s, err := sc.sessions.Create(c.Request.Context())
	if err != nil {
		sc.writeError(c, err, nil)
		return
	}

	token, err := sc.tokens.Issue(s.ID)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to issue session token", "session.id", s.ID, "error", err)
		response.ErrorResponse(c, http.StatusInternalServerError, "failed to issue token")
		return
	}

	response.SuccessResponse(c, proto.CreateSessionResponse{
		Game:  proto.NewGameView(s.ID, s.State, s.UpdatedAt),
		Token: token,
	})
}

// Get returns the current snapshot of a game.
func (sc *SessionController) Get(c *gin.Context) {
	s, err := sc.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sc.writeError(c, err, nil)
		return
	}
	response.SuccessResponse(c, proto.NewGameView(s.ID, s.State, s.UpdatedAt))
}

// Move places the current turn's mark on the requested cell.
func (sc *SessionController) Move(c *gin.Context) {
	var req proto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	s, err := sc.sessions.ApplyMove(c.Request.Context(), c.Param("id"), *req.Index)
	if err != nil {
		sc.writeError(c, err, s)
		return
	}
	response.SuccessResponse(c, proto.NewGameView(s.ID, s.State, s.UpdatedAt))
}

// Reset restarts the game.
func (sc *SessionController) Reset(c *gin.Context) {
	s, err := sc.sessions.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		sc.writeError(c, err, nil)
		return
	}
	response.SuccessResponse(c, proto.NewGameView(s.ID, s.State, s.UpdatedAt))
}

// Delete ends a session.
func (sc *SessionController) Delete(c *gin.Context) {
	if err := sc.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		sc.writeError(c, err, nil)
		return
	}
	response.SuccessResponse(c, gin.H{"message": "Session deleted"})
}

// Scoreboard returns the win/draw tally.
func (sc *SessionController) Scoreboard(c *gin.Context) {
	tally, err := sc.results.Tally(c.Request.Context())
	if err != nil {
		sc.writeError(c, err, nil)
		return
	}
	response.SuccessResponse(c, tally)
}

// RecentResults lists the latest finished games.
func (sc *SessionController) RecentResults(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			response.ErrorResponse(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	results, err := sc.results.Recent(c.Request.Context(), limit)
	if err != nil {
		sc.writeError(c, err, nil)
		return
	}
	response.SuccessResponseList(c, results)
}

// RequireSessionToken rejects requests whose bearer token was not issued for the :id session.
func (sc *SessionController) RequireSessionToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.AbortWithError(c, http.StatusUnauthorized, response.NewError("missing bearer token", "unauthorized", nil))
			return
		}

		if err := sc.tokens.Authorize(token, c.Param("id")); err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				response.AbortWithError(c, http.StatusForbidden, response.NewError(err.Error(), "forbidden", nil))
				return
			}
			response.AbortWithError(c, http.StatusUnauthorized, response.NewError(err.Error(), "unauthorized", nil))
			return
		}
		c.Next()
	}
}

// writeError maps service errors to HTTP responses. current is the unchanged
// session returned alongside a rejected move, if any.
func (sc *SessionController) writeError(c *gin.Context, err error, current *session.Session) {
	var view any
	if current != nil {
		view = proto.NewGameView(current.ID, current.State, current.UpdatedAt)
	}

	var rejected *game.MoveRejectedError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		response.AbortWithError(c, http.StatusNotFound, response.NewError(err.Error(), "not_found", nil))
	case errors.Is(err, game.ErrInvalidIndex):
		response.AbortWithError(c, http.StatusBadRequest, response.NewError(err.Error(), "invalid_index", view))
	case errors.As(err, &rejected):
		response.AbortWithError(c, http.StatusConflict, response.NewError(err.Error(), string(rejected.Reason), view))
	default:
		slog.ErrorContext(c.Request.Context(), "Request failed", "path", c.FullPath(), "error", err)
		response.ErrorResponse(c, http.StatusInternalServerError, "internal error")
	}
}

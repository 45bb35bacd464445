package controller

import (
	"ctchen222/TicTacToe-Classic/internal/api/controller/mocks"
	"ctchen222/TicTacToe-Classic/internal/auth"
	"ctchen222/TicTacToe-Classic/internal/game"
	"ctchen222/TicTacToe-Classic/internal/scoreboard"
	"ctchen222/TicTacToe-Classic/internal/session"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testEnv struct {
	router   *gin.Engine
	sessions *mocks.MockSessionService
	tokens   *mocks.MockTokenAuthority
	results  *mocks.MockResultsReader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)

	env := &testEnv{
		router:   gin.New(),
		sessions: mocks.NewMockSessionService(ctrl),
		tokens:   mocks.NewMockTokenAuthority(ctrl),
		results:  mocks.NewMockResultsReader(ctrl),
	}
	sc := NewSessionController(env.sessions, env.tokens, env.results)

	api := env.router.Group("/api")
	api.POST("/sessions", sc.Create)
	api.GET("/sessions/:id", sc.Get)
	api.GET("/scoreboard", sc.Scoreboard)
	api.GET("/results", sc.RecentResults)
	owned := api.Group("/sessions/:id", sc.RequireSessionToken())
	owned.POST("/moves", sc.Move)
	owned.POST("/reset", sc.Reset)
	owned.DELETE("", sc.Delete)
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Extras  json.RawMessage `json:"extras"`
}

type errorExtras struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
	Game    *struct {
		Cells  game.Board  `json:"cells"`
		Status game.Status `json:"status"`
	} `json:"game"`
}

func (env *testEnv) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func sessionWith(id string, moves ...int) *session.Session {
	g := game.NewGame()
	for _, idx := range moves {
		_, _ = g.ApplyMove(idx)
	}
	return &session.Session{ID: id, State: g.Snapshot(), UpdatedAt: time.Unix(1700000000, 0)}
}

func TestSessionController_Create(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.EXPECT().Create(gomock.Any()).Return(sessionWith("s1"), nil)
	env.tokens.EXPECT().Issue("s1").Return("tok", nil)

	w, resp := env.do(t, http.MethodPost, "/api/sessions", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	var created struct {
		Token string `json:"token"`
		Game  struct {
			SessionID string          `json:"session_id"`
			Turn      game.PlayerMark `json:"turn"`
			TurnText  string          `json:"turn_text"`
			OpenCells []int           `json:"open_cells"`
		} `json:"game"`
	}
	require.NoError(t, json.Unmarshal(resp.Extras, &created))
	assert.Equal(t, "tok", created.Token)
	assert.Equal(t, "s1", created.Game.SessionID)
	assert.Equal(t, game.PlayerX, created.Game.Turn)
	assert.Equal(t, "Turn: X", created.Game.TurnText)
	assert.Len(t, created.Game.OpenCells, game.BoardSize)
}

func TestSessionController_CreateTokenFailure(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.EXPECT().Create(gomock.Any()).Return(sessionWith("s1"), nil)
	env.tokens.EXPECT().Issue("s1").Return("", errors.New("boom"))

	w, resp := env.do(t, http.MethodPost, "/api/sessions", "", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, resp.Success)
}

func TestSessionController_Get(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		env := newTestEnv(t)
		env.sessions.EXPECT().Get(gomock.Any(), "s1").Return(sessionWith("s1", 0, 3, 1, 4, 2), nil)

		w, resp := env.do(t, http.MethodGet, "/api/sessions/s1", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var view struct {
			Headline string          `json:"headline"`
			Winner   game.PlayerMark `json:"winner"`
		}
		require.NoError(t, json.Unmarshal(resp.Extras, &view))
		assert.Equal(t, "Player X wins!", view.Headline)
		assert.Equal(t, game.PlayerX, view.Winner)
	})

	t.Run("Not found", func(t *testing.T) {
		env := newTestEnv(t)
		env.sessions.EXPECT().Get(gomock.Any(), "nope").Return(nil, session.ErrSessionNotFound)

		w, resp := env.do(t, http.MethodGet, "/api/sessions/nope", "", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		var extras errorExtras
		require.NoError(t, json.Unmarshal(resp.Extras, &extras))
		assert.Equal(t, "not_found", extras.Reason)
	})
}

func TestSessionController_Move(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(env *testEnv)
		wantCode   int
		wantReason string
		wantGame   bool
	}{
		{
			name: "Accepted",
			body: `{"index":4}`,
			setup: func(env *testEnv) {
				env.sessions.EXPECT().ApplyMove(gomock.Any(), "s1", 4).Return(sessionWith("s1", 4), nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "Index zero is a real move",
			body: `{"index":0}`,
			setup: func(env *testEnv) {
				env.sessions.EXPECT().ApplyMove(gomock.Any(), "s1", 0).Return(sessionWith("s1", 0), nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name:     "Missing index",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Malformed body",
			body:     `{"index":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "Occupied cell",
			body: `{"index":4}`,
			setup: func(env *testEnv) {
				env.sessions.EXPECT().ApplyMove(gomock.Any(), "s1", 4).
					Return(sessionWith("s1", 4), &game.MoveRejectedError{Reason: game.ReasonCellOccupied, Index: 4})
			},
			wantCode:   http.StatusConflict,
			wantReason: "cell_occupied",
			wantGame:   true,
		},
		{
			name: "Game over",
			body: `{"index":8}`,
			setup: func(env *testEnv) {
				env.sessions.EXPECT().ApplyMove(gomock.Any(), "s1", 8).
					Return(sessionWith("s1", 0, 3, 1, 4, 2), &game.MoveRejectedError{Reason: game.ReasonGameOver, Index: 8})
			},
			wantCode:   http.StatusConflict,
			wantReason: "game_over",
			wantGame:   true,
		},
		{
			name: "Index off the board",
			body: `{"index":9}`,
			setup: func(env *testEnv) {
				env.sessions.EXPECT().ApplyMove(gomock.Any(), "s1", 9).Return(sessionWith("s1"), game.ErrInvalidIndex)
			},
			wantCode:   http.StatusBadRequest,
			wantReason: "invalid_index",
			wantGame:   true,
		},
		{
			name: "Store failure",
			body: `{"index":1}`,
			setup: func(env *testEnv) {
				env.sessions.EXPECT().ApplyMove(gomock.Any(), "s1", 1).Return(nil, errors.New("redis down"))
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.tokens.EXPECT().Authorize("tok", "s1").Return(nil)
			if tt.setup != nil {
				tt.setup(env)
			}

			w, resp := env.do(t, http.MethodPost, "/api/sessions/s1/moves", tt.body, "tok")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, resp.Success)
			if tt.wantReason != "" {
				var extras errorExtras
				require.NoError(t, json.Unmarshal(resp.Extras, &extras))
				assert.Equal(t, tt.wantReason, extras.Reason)
				assert.Equal(t, tt.wantGame, extras.Game != nil)
			}
		})
	}
}

func TestSessionController_RequireSessionToken(t *testing.T) {
	t.Run("Missing token", func(t *testing.T) {
		env := newTestEnv(t)
		w, _ := env.do(t, http.MethodPost, "/api/sessions/s1/moves", `{"index":1}`, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Invalid token", func(t *testing.T) {
		env := newTestEnv(t)
		env.tokens.EXPECT().Authorize("bad", "s1").Return(auth.ErrInvalidToken)
		w, _ := env.do(t, http.MethodPost, "/api/sessions/s1/reset", "", "bad")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Token for another session", func(t *testing.T) {
		env := newTestEnv(t)
		env.tokens.EXPECT().Authorize("other", "s1").Return(auth.ErrForbidden)
		w, resp := env.do(t, http.MethodDelete, "/api/sessions/s1", "", "other")
		assert.Equal(t, http.StatusForbidden, w.Code)
		var extras errorExtras
		require.NoError(t, json.Unmarshal(resp.Extras, &extras))
		assert.Equal(t, "forbidden", extras.Reason)
	})
}

func TestSessionController_ResetAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.tokens.EXPECT().Authorize("tok", "s1").Return(nil).Times(2)
	env.sessions.EXPECT().Reset(gomock.Any(), "s1").Return(sessionWith("s1"), nil)
	env.sessions.EXPECT().Delete(gomock.Any(), "s1").Return(nil)

	w, resp := env.do(t, http.MethodPost, "/api/sessions/s1/reset", "", "tok")
	assert.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Status game.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Extras, &view))
	assert.Equal(t, game.StatusInProgress, view.Status)

	w, _ = env.do(t, http.MethodDelete, "/api/sessions/s1", "", "tok")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionController_Scoreboard(t *testing.T) {
	env := newTestEnv(t)
	env.results.EXPECT().Tally(gomock.Any()).Return(scoreboard.Tally{XWins: 3, OWins: 1, Draws: 2}, nil)

	w, resp := env.do(t, http.MethodGet, "/api/scoreboard", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var tally scoreboard.Tally
	require.NoError(t, json.Unmarshal(resp.Extras, &tally))
	assert.Equal(t, scoreboard.Tally{XWins: 3, OWins: 1, Draws: 2}, tally)
}

func TestSessionController_RecentResults(t *testing.T) {
	t.Run("Default limit", func(t *testing.T) {
		env := newTestEnv(t)
		env.results.EXPECT().Recent(gomock.Any(), defaultRecentLimit).Return([]scoreboard.Result{
			{SessionID: "s1", Outcome: game.StatusDraw},
		}, nil)

		w, resp := env.do(t, http.MethodGet, "/api/results", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var extras struct {
			List []scoreboard.Result `json:"list"`
		}
		require.NoError(t, json.Unmarshal(resp.Extras, &extras))
		require.Len(t, extras.List, 1)
		assert.Equal(t, "s1", extras.List[0].SessionID)
	})

	t.Run("Custom limit", func(t *testing.T) {
		env := newTestEnv(t)
		env.results.EXPECT().Recent(gomock.Any(), 5).Return(nil, nil)

		w, _ := env.do(t, http.MethodGet, "/api/results?limit=5", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	for _, limit := range []string{"0", "101", "ten"} {
		t.Run("Rejects limit "+limit, func(t *testing.T) {
			env := newTestEnv(t)
			w, _ := env.do(t, http.MethodGet, "/api/results?limit="+limit, "", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// Compile-time checks that the real services satisfy the controller's interfaces.
var (
	_ SessionService = (*session.Manager)(nil)
	_ TokenAuthority = (*auth.TokenIssuer)(nil)
	_ ResultsReader  = (*scoreboard.Scoreboard)(nil)
)

package server

import (
	"ctchen222/TicTacToe-Classic/internal/api/controller"
	"ctchen222/TicTacToe-Classic/internal/api/response"
	"ctchen222/TicTacToe-Classic/internal/hub"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("server")

type Server struct {
	hub        *hub.Hub
	controller *controller.SessionController
	tokens     controller.TokenAuthority
	upgrader   websocket.Upgrader
	engine     *gin.Engine
}

func NewServer(h *hub.Hub, sc *controller.SessionController, tokens controller.TokenAuthority) *Server {
	s := &Server{
		hub:        h,
		controller: sc,
		tokens:     tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.engine = s.routes()
	return s
}

// Engine returns the HTTP handler serving the API and the websocket endpoint.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		response.SuccessResponse(c, gin.H{"status": "ok"})
	})
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	{
		api.POST("/sessions", s.controller.Create)
		api.GET("/sessions/:id", s.controller.Get)
		api.GET("/scoreboard", s.controller.Scoreboard)
		api.GET("/results", s.controller.RecentResults)

		owned := api.Group("/sessions/:id", s.controller.RequireSessionToken())
		owned.POST("/moves", s.controller.Move)
		owned.POST("/reset", s.controller.Reset)
		owned.DELETE("", s.controller.Delete)
	}
	return r
}

// handleWebSocket upgrades the connection and hands it to the hub. Clients
// without a token may watch a session but not play in it.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.String()),
		attribute.String("http.method", c.Request.Method),
	))

	sessionID := c.Query("session")
	if sessionID == "" {
		span.End()
		response.ErrorResponse(c, http.StatusBadRequest, "session query parameter is required")
		return
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	canControl := false
	if token := c.Query("token"); token != "" {
		if err := s.tokens.Authorize(token, sessionID); err != nil {
			span.RecordError(err)
			span.End()
			response.AbortWithError(c, http.StatusUnauthorized, response.NewError(err.Error(), "unauthorized", nil))
			return
		}
		canControl = true
	}
	span.SetAttributes(attribute.Bool("client.can_control", canControl))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to upgrade connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		span.End()
		return
	}
	span.End()

	s.hub.Serve(ctx, hub.NewClient(sessionID, conn, canControl))
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "HTTP request",
			"http.method", c.Request.Method,
			"http.route", c.FullPath(),
			"http.status_code", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

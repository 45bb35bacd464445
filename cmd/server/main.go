package main

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/api/controller"
	"ctchen222/TicTacToe-Classic/internal/auth"
	"ctchen222/TicTacToe-Classic/internal/config"
	"ctchen222/TicTacToe-Classic/internal/db"
	"ctchen222/TicTacToe-Classic/internal/events"
	"ctchen222/TicTacToe-Classic/internal/hub"
	"ctchen222/TicTacToe-Classic/internal/logger"
	"ctchen222/TicTacToe-Classic/internal/scoreboard"
	"ctchen222/TicTacToe-Classic/internal/server"
	"ctchen222/TicTacToe-Classic/internal/session"
	"ctchen222/TicTacToe-Classic/internal/telemetry"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const janitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, cfg.Otel)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	logger.Init(cfg.LogLevel, cfg.Otel.Enabled)

	// Initialize SQLite DB
	pool, err := db.Connect(ctx, cfg.SQLite.Path)
	if err != nil {
		log.Fatalf("failed to initialize sqlite db: %v", err)
	}
	defer pool.Close()
	results := scoreboard.New(pool)

	// Session storage and the event bus live in the same backend
	var (
		store session.Store
		bus   events.Bus
	)
	switch cfg.Store {
	case config.StoreRedis:
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.ConnString)
		if err != nil {
			log.Fatalf("failed to initialize redis: %v", err)
		}
		defer rdb.Close()
		store = session.NewRedisStore(rdb, cfg.Session.TTL)
		bus = events.NewRedisBus(rdb)
	default:
		memory := session.NewMemoryStore(cfg.Session.TTL)
		go memory.RunJanitor(ctx, janitorInterval)
		store = memory
		bus = events.NewLocalBus()
	}
	slog.Info("Session store ready", "store", cfg.Store)

	manager := session.NewManager(store, bus, results)
	tokens := auth.NewTokenIssuer(cfg.Token.Secret, cfg.Token.TTL)
	sessionController := controller.NewSessionController(manager, tokens, results)

	// Create hub
	h := hub.NewHub(manager, bus)
	go func() {
		if err := h.Run(ctx); err != nil {
			slog.Error("Hub stopped", "error", err)
			stop()
		}
	}()

	srv := server.NewServer(h, sessionController, tokens)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: otelhttp.NewHandler(srv.Engine(), "http.server"),
	}

	go func() {
		slog.Info("http server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mapsketch/internal/api"
	"mapsketch/internal/config"
	"mapsketch/internal/db"
	"mapsketch/internal/logging"
	"mapsketch/internal/relay"
	"mapsketch/internal/repository"
	"mapsketch/internal/services"
	"mapsketch/internal/telemetry"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

Startup order:
1. Config, then logging, then tracing (so everything after is logged and traced)
2. Optional session audit: database, repository, audit worker pool, retention sweeper
3. Registry -> Relay -> WebSocket server -> router -> http.Server

Shutdown runs in reverse: stop accepting HTTP, close live sockets (each one
reports its close to the relay and the audit pool), drain the audit queue,
then close the database and flush traces.
*/

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("❌ Failed to load config")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.Info().Msg("🚀 Starting mapsketch relay...")

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown := func(ctx context.Context) error { return nil }
	if cfg.JaegerEndpoint != "" {
		shutdown, err := telemetry.InitJaeger(telemetry.Config{
			ServiceName: "mapsketch-relay",
			Endpoint:    cfg.JaegerEndpoint,
			SampleRatio: cfg.JaegerSampleRatio,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("⚠️ Failed to initialize Jaeger (continuing without tracing)")
		} else {
			jaegerShutdown = shutdown
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("⚠️ Failed to shutdown Jaeger")
		}
	}()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Optional session audit
	var (
		relayOpts []relay.Option
		sessions  api.SessionHistory
		audit     *services.AuditServiceImpl
	)
	relayOpts = append(relayOpts, relay.WithDefaultRoom(cfg.DefaultRoom))

	if cfg.DatabaseURL != "" {
		database, err := db.NewGorm(cfg.DatabaseURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("❌ Failed to connect to database")
		}
		defer database.Close()

		sessionRepo := repository.NewSessionRepository(database.DB)
		if n, err := sessionRepo.CloseDangling(ctx, time.Now()); err != nil {
			logging.Warn().Err(err).Msg("⚠️ Failed to close dangling session records")
		} else if n > 0 {
			logging.Info().Int64("records", n).Msg("closed session records left open by a previous run")
		}

		// Learning: The relay never waits on the database; writes go through a worker pool
		audit = services.NewAuditService(sessionRepo, cfg.AuditWorkers, cfg.AuditQueueSize)
		audit.Start()
		relayOpts = append(relayOpts, relay.WithAudit(audit))
		sessions = sessionRepo

		sweeper := services.NewRetentionSweeper(sessionRepo, cfg.AuditRetention, cfg.AuditSweepInterval)
		go sweeper.Run(ctx)
	} else {
		logging.Info().Msg("DATABASE_URL not set, session audit disabled")
	}

	// Relay wiring
	// Learning: The registry is owned here and injected, never a package global
	registry := relay.NewRegistry()
	relayer := relay.NewRelay(registry, relayOpts...)
	limits := relay.Limits{
		WriteWait:       cfg.WriteWait,
		PongWait:        cfg.PongWait,
		PingPeriod:      cfg.PingPeriod(),
		MaxMessageBytes: cfg.MaxMessageBytes,
	}
	wsServer := relay.NewServer(relayer, limits, cfg.AllowedOrigins)

	// Initialize handlers with dependency injection
	handler := api.NewHandler(registry, sessions, wsServer)

	// Setup routes
	router := api.SetupRoutes(handler, api.RouteOptions{
		WSPath:       cfg.WSPath,
		RoomStats:    cfg.RoomStatsEnabled,
		SessionAudit: sessions != nil,
	})

	// Configure HTTP server
	// Learning: No WriteTimeout; upgraded sockets manage their own deadlines
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		logging.Info().
			Str("addr", cfg.Addr()).
			Str("ws_path", cfg.WSPath).
			Str("default_room", cfg.DefaultRoom).
			Bool("room_stats", cfg.RoomStatsEnabled).
			Bool("session_audit", sessions != nil).
			Msg("🌐 Relay listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("❌ Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("🛑 Shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new connections; hijacked sockets are not tracked by http.Server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("⚠️ Server forced to shutdown")
	}

	// Close live sockets and wait for their sessions to leave the registry
	wsServer.Shutdown()
	for wsServer.LiveSessions() > 0 && shutdownCtx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}

	stopBackground()
	if audit != nil {
		// Learning: This waits for queued audit writes to finish
		audit.Shutdown()
	}

	logging.Info().Msg("✓ Relay shutdown complete")
}

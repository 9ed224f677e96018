// Command api is the HomeScout alert engine server.
//
// Usage:
//
//	alert-api
//	API_PORT=8080 alert-api

// @title HomeScout Alert Engine API
// @version 1.0.0
// @description Real-time listing alert engine: evaluates listing change events against saved searches, throttles, and dispatches notifications across push, email, and SMS channels.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name HomeScout
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/homescout/alert-engine/internal/api"
	"github.com/homescout/alert-engine/internal/config"
	"github.com/homescout/alert-engine/internal/db"
	"github.com/homescout/alert-engine/internal/engine"
	"github.com/homescout/alert-engine/internal/listener"
	"github.com/homescout/alert-engine/internal/maintenance"
	"github.com/homescout/alert-engine/internal/match"
	"github.com/homescout/alert-engine/internal/metrics"
	"github.com/homescout/alert-engine/internal/notify"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/provider/schools"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/throttle"

	_ "github.com/homescout/alert-engine/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc := cfg.Location()

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Apply schema migrations before anything touches the pool: prepared
	// statements reference the schema.
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	metrics.Init(pool.Pool)

	// Channel senders
	senders := map[string]notify.Sender{}
	if push := notify.NewPushSender(cfg.PushCredentialsFile, logger); push != nil {
		senders[prefs.ChannelPush] = push
		logger.Info("Push sender enabled")
	} else {
		logger.Info("Push sender disabled (no PUSH_CREDENTIALS_FILE)")
	}
	for _, ch := range cfg.DevChannels {
		senders[ch] = notify.NewLogSender(ch, logger)
		logger.Info("Dev channel sender enabled", "channel", ch)
	}

	// School directory (optional matcher collaborator)
	directory := schools.NewClient(cfg.SchoolsAPIURL, cfg.SchoolsAPIKey,
		cfg.SchoolsPerMinute, cfg.SchoolsMaxDistKm, logger)
	var schoolDir match.SchoolDirectory
	if directory != nil {
		schoolDir = directory
		logger.Info("School directory enabled", "url", cfg.SchoolsAPIURL)
	}

	// Core pipeline
	prefStore := prefs.NewPGStore(pool.Pool)
	manager := throttle.NewManager(throttle.NewPGStore(pool.Pool),
		cfg.ThrottlingEnabled, loc, logger)
	router := notify.NewRouter(notify.NewPGStore(pool.Pool), senders, logger)
	queueStore := queue.NewPGStore(pool.Pool)
	eng := engine.New(search.NewPGStore(pool.Pool), match.New(schoolDir, logger),
		manager, router, queueStore, prefStore, logger)
	processor := queue.NewProcessor(queueStore, manager, router, prefStore, logger)

	// Start LISTEN/NOTIFY consumer for real-time listing events
	go listener.Start(ctx, cfg.DatabaseURL, eng, logger)

	// Start scheduled queue processing and nightly cleanup
	sched := maintenance.New(pool, processor, loc, logger)
	go func() {
		if err := sched.Start(ctx, cfg.QueueProcessSpec, cfg.CleanupSpec); err != nil {
			logger.Error("Maintenance scheduler failed", "error", err)
		}
	}()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(pool.Pool, cfg, eng, processor, queueStore, manager),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting HomeScout Alert Engine",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}

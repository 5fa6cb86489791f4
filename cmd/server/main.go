package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/api"
	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
	"github.com/eldtechnologies/chatrelay/internal/media"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Directory store: PostgreSQL when configured, SQLite otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer dataStore.Close()

	// Sessions: Redis when configured, process memory otherwise
	var redisStore *store.RedisStore
	var sessions store.SessionStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		memSessions := store.NewMemorySessionStore()
		defer memSessions.Close()
		sessions = memSessions
		logger.Warn().Msg("REDIS_URL not set, sessions kept in memory")
	}

	// Cross-instance fan-out
	var bus *relay.NATSBus
	hubOpts := relay.Options{
		WelcomeText:    cfg.WelcomeText,
		ClockFormat:    cfg.ClockFormat,
		QueueSize:      cfg.SendQueueSize,
		AllowedOrigins: cfg.AllowedOrigins,
		MediaPrefix:    cfg.UploadURLPrefix,
	}
	if cfg.NatsURL != "" {
		var err error
		bus, err = relay.NewNATSBus(cfg.NatsURL, relay.DefaultSubject, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connection failed")
		}
		defer bus.Close()
		hubOpts.Bus = bus
		logger.Info().Msg("connected to NATS")
	}

	hub := relay.NewHub(logger, hubOpts)
	if err := hub.Start(); err != nil {
		logger.Fatal().Err(err).Msg("relay start failed")
	}

	storage, err := media.NewStorage(cfg.UploadDir, cfg.UploadURLPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("upload storage unavailable")
	}

	// Create router
	router := api.NewRouter(logger, handlers.Deps{
		Store:    dataStore,
		Sessions: sessions,
		Redis:    redisStore,
		Bus:      bus,
		Hub:      hub,
		Media:    storage,
		Logger:   logger,
	}, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
			UploadBudget:     cfg.UploadBudget,
		},
		UploadURLPrefix: cfg.UploadURLPrefix,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatrelay server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Int("connections", hub.Len()).Msg("shutting down server...")

	// Hijacked sockets are not tracked by Shutdown; close them explicitly
	hub.BroadcastSystem("Server is restarting. Reconnecting shortly...")
	hub.CloseAll()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

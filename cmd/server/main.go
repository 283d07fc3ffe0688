// studylog collector server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/studylog/internal/api"
	"github.com/ashureev/studylog/internal/config"
	"github.com/ashureev/studylog/internal/feed"
	"github.com/ashureev/studylog/internal/middleware"
	"github.com/ashureev/studylog/internal/registry"
	"github.com/ashureev/studylog/internal/store"
	"github.com/ashureev/studylog/internal/sweeper"
	"github.com/ashureev/studylog/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "db_path", cfg.DBPath)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	var items *registry.Registry
	if cfg.ItemRegistryPath != "" {
		items, err = registry.Load(cfg.ItemRegistryPath)
		if err != nil {
			slog.Error("Failed to load item registry", "path", cfg.ItemRegistryPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Item registry loaded", "apps", len(items.Apps()), "strict", cfg.StrictItems)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub(0, logger)
	limiter := middleware.NewRateLimiter(ctx, cfg.EventsRateLimit.Limit, cfg.EventsRateLimit.Window)

	apiHandler := api.NewHandler(repo, logger,
		api.WithRegistry(items, cfg.StrictItems),
		api.WithFeed(hub),
		api.WithUploads(cfg.UploadsDir, cfg.MaxUploadBytes),
	)
	healthHandler := api.NewHealthHandler(repo)
	feedHandler := feed.NewWebSocketHandler(repo, hub, cfg.AllowedOrigins, logger)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r, limiter.Middleware)
	feedHandler.RegisterRoutes(r)

	r.Handle("/tasks/*", http.StripPrefix("/tasks", web.TasksHandler(cfg.TasksDir)))

	// WebSocket feeds are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sweeper.Start(ctx, repo, cfg.SweepInterval, cfg.SessionTTL, func(sessionIDs []string) {
		for _, id := range sessionIDs {
			hub.CloseSession(id)
		}
	})

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

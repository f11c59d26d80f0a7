package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/retailsearch/retailsearch/internal/api"
	"github.com/retailsearch/retailsearch/internal/app"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/query"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("retailsearch-execute")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.CatalogStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := app.OpenDatabase(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	executor := query.NewService(db.Pool, app.ExecutionOptions(cfg), logger)
	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Executor:          executor,
		Readiness:         api.PingCheck(db.Pool),
		DependencyTimeout: time.Second,
	})
	if err := app.Serve(ctx, cfg, handler, logger); err != nil {
		logger.Error("execution peer failed", slog.Any("error", err))
		os.Exit(1)
	}
}

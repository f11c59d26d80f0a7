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
	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("retailsearch-agent-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archiver, err := app.NewArchiver(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize transcript archive", slog.Any("error", err))
		os.Exit(1)
	}
	journal := archive.NewJournal()

	store, err := app.OpenSessionStore(ctx, cfg, logger, onExpire(journal, archiver, logger))
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	go store.RunJanitor(ctx, cfg)

	orch, err := app.NewOrchestrator(cfg, store, journal, logger)
	if err != nil {
		logger.Error("failed to initialize agent", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Agent:             orch,
		Journal:           journal,
		DependencyTimeout: time.Second,
	}
	if archiver != nil {
		deps.Archiver = archiver
		deps.Readiness = api.CheckObjectStoreConfig(cfg)
	}
	if err := app.Serve(ctx, cfg, api.NewHandler(cfg, deps), logger); err != nil {
		logger.Error("agent api failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// onExpire archives the transcript of an evicted session, or drops it when
// archiving is disabled.
func onExpire(journal *archive.Journal, archiver *archive.Archiver, logger *slog.Logger) func(session.Session) {
	return func(s session.Session) {
		if archiver == nil {
			journal.Forget(s.ID)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		key, err := archive.Flush(ctx, journal, archiver, s.ID)
		journal.Forget(s.ID)
		if err != nil {
			logger.Error("failed to archive expired session", slog.String("session_id", s.ID), slog.Any("error", err))
			return
		}
		if key != "" {
			logger.Info("expired session archived", slog.String("session_id", s.ID), slog.String("object_key", key))
		}
	}
}

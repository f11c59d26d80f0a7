package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/retailsearch/retailsearch/internal/agent"
	"github.com/retailsearch/retailsearch/internal/app"
	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("retailsearch-agent")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	// The console owns stdout, so logs go to stderr.
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenSessionStore(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	go store.RunJanitor(ctx, cfg)

	archiver, err := app.NewArchiver(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize transcript archive", slog.Any("error", err))
		os.Exit(1)
	}
	journal := archive.NewJournal()

	orch, err := app.NewOrchestrator(cfg, store, journal, logger)
	if err != nil {
		logger.Error("failed to initialize agent", slog.Any("error", err))
		os.Exit(1)
	}
	s, err := orch.StartSession(ctx, cfg.Agent.AppName, cfg.Agent.UserID)
	if err != nil {
		logger.Error("failed to start session", slog.Any("error", err))
		os.Exit(1)
	}

	transcript, runErr := agent.RunConsole(ctx, os.Stdin, os.Stdout, orch, s.ID)
	if runErr != nil {
		logger.Error("console loop failed", slog.Any("error", runErr))
	}

	if archiver != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for _, sessionID := range sessionIDs(s.ID, transcript) {
			key, err := archive.Flush(flushCtx, journal, archiver, sessionID)
			if err != nil {
				logger.Error("failed to archive transcript", slog.String("session_id", sessionID), slog.Any("error", err))
			} else if key != "" {
				logger.Info("transcript archived", slog.String("session_id", sessionID), slog.String("object_key", key))
			}
		}
		cancel()
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// sessionIDs lists the first session and any that replaced it after expiry.
func sessionIDs(first string, transcript []archive.TurnRecord) []string {
	ids := []string{first}
	seen := map[string]struct{}{first: {}}
	for _, record := range transcript {
		if _, ok := seen[record.SessionID]; ok {
			continue
		}
		seen[record.SessionID] = struct{}{}
		ids = append(ids, record.SessionID)
	}
	return ids
}

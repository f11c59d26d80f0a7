package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/retailsearch/retailsearch/internal/app"
	"github.com/retailsearch/retailsearch/internal/catalog"
	catalogpostgres "github.com/retailsearch/retailsearch/internal/catalog/postgres"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/pool"
)

func main() {
	count := flag.Int("count", 200, "number of apparel rows to generate")
	seed := flag.Int64("seed", 42, "generator seed; the same seed yields the same rows")
	toPostgres := flag.Bool("postgres", true, "upsert rows into the postgres catalog")
	toParquet := flag.Bool("parquet", false, "publish a parquet snapshot to the object store")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("retailsearch-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	items := catalog.NewGenerator(*seed).Batch(*count)

	if *toPostgres {
		db, err := pool.Open(ctx, pool.DBConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: 2,
		})
		if err != nil {
			logger.Error("failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		repo := catalogpostgres.NewRepository(db)
		if err := repo.HealthCheck(ctx); err != nil {
			logger.Error("apparel database unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		written, err := repo.UpsertApparels(ctx, items)
		if err != nil {
			logger.Error("failed to seed postgres catalog", slog.Any("error", err))
			os.Exit(1)
		}
		total, err := repo.CountApparels(ctx)
		if err != nil {
			logger.Error("failed to count apparels", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("postgres catalog seeded", slog.Int("written", written), slog.Int64("total", total))

		// The parquet snapshot mirrors the whole table, not just this batch.
		if *toParquet {
			items, err = repo.ListApparels(ctx)
			if err != nil {
				logger.Error("failed to read postgres catalog", slog.Any("error", err))
				os.Exit(1)
			}
		}
	}

	if *toParquet {
		store, err := app.OpenObjectStore(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		key, err := catalog.PublishParquet(ctx, store, items, time.Now().UTC())
		if err != nil {
			logger.Error("failed to publish parquet catalog", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("parquet catalog published", slog.String("object_key", key), slog.Int("rows", len(items)))
	}
}

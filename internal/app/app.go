// Package app wires config into the services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/retailsearch/retailsearch/internal/agent"
	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/pool"
	"github.com/retailsearch/retailsearch/internal/query"
	duckdbcatalog "github.com/retailsearch/retailsearch/internal/query/duckdb"
	"github.com/retailsearch/retailsearch/internal/remote"
	"github.com/retailsearch/retailsearch/internal/session"
	"github.com/retailsearch/retailsearch/internal/storage"
	s3store "github.com/retailsearch/retailsearch/internal/storage/s3"
)

// Database is the connection pool of a peer plus whatever backs it.
type Database struct {
	Pool   *pool.Pool
	closer func() error
}

func (d *Database) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	return d.closer()
}

func OpenObjectStore(ctx context.Context, cfg config.Config) (*s3store.Store, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize object store: %w", err)
	}
	return store, nil
}

// CatalogStore opens the object store holding the parquet catalog. It is nil
// unless the duckdb backend is configured.
func CatalogStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.Database.Driver != config.DriverDuckDB {
		return nil, nil
	}
	return OpenObjectStore(ctx, cfg)
}

// OpenDatabase opens the configured backend and puts the pool in front of it.
// The duckdb backend loads the parquet catalog from store.
func OpenDatabase(ctx context.Context, cfg config.Config, store storage.ObjectStore, logger *slog.Logger) (*Database, error) {
	poolCfg := pool.Config{
		Size:              cfg.Database.PoolSize,
		AcquireTimeout:    cfg.Database.AcquireTimeout,
		ValidateOnAcquire: cfg.Database.ValidateOnAcquire,
		MaxConnAge:        cfg.Database.ConnMaxLifetime,
	}

	if cfg.Database.Driver == config.DriverDuckDB {
		if store == nil {
			return nil, fmt.Errorf("duckdb backend requires an object store")
		}
		objects, err := cfg.Database.CatalogObjects()
		if err != nil {
			return nil, err
		}
		catalog, err := duckdbcatalog.OpenCatalog(ctx, store, objects)
		if err != nil {
			return nil, fmt.Errorf("open duckdb catalog: %w", err)
		}
		p, err := pool.New(catalog.DB, poolCfg)
		if err != nil {
			_ = catalog.Close()
			return nil, err
		}
		logger.Info("duckdb catalog loaded", slog.Any("tables", catalog.Tables()))
		return &Database{Pool: p, closer: func() error {
			_ = p.Close()
			return catalog.Close()
		}}, nil
	}

	db, err := pool.Open(ctx, pool.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.PoolSize,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	p, err := pool.New(db, poolCfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Database{Pool: p, closer: p.Close}, nil
}

// ExecutionOptions maps config onto the execution service. DuckDB runs
// without a read-only transaction; its catalog is confined to its own files
// when opened.
func ExecutionOptions(cfg config.Config) query.Options {
	opts := query.Options{
		Allowlist: cfg.Execution.Allowlist,
		ReadOnly:  cfg.Execution.ReadOnly,
		RowLimit:  cfg.Execution.RowLimit,
	}
	if cfg.Database.Driver == config.DriverDuckDB {
		opts.ReadOnly = false
	}
	return opts
}

// NewGenerator builds the generation service for the configured translator.
// The openai translator prompts with schema context read through executor.
func NewGenerator(cfg config.Config, leaser query.Leaser, executor query.Executor, logger *slog.Logger) (*nl2sql.Service, error) {
	switch cfg.Generation.Translator {
	case config.TranslatorAlloyDB:
		translator, err := nl2sql.NewAlloyDBTranslator(leaser)
		if err != nil {
			return nil, err
		}
		return nl2sql.NewService(translator, nl2sql.Options{
			ConfigName: cfg.Generation.ConfigName,
			Provider:   nl2sql.ProviderAlloyDB,
		}, logger)
	case config.TranslatorOpenAI:
		translator, err := nl2sql.NewOpenAITranslator(openAIConfig(cfg))
		if err != nil {
			return nil, err
		}
		return nl2sql.NewService(translator, nl2sql.Options{
			ConfigName: cfg.Generation.ConfigName,
			Provider:   nl2sql.ProviderOpenAI,
			Schema: nl2sql.CachedSchema(executor, config.TableList(cfg.Generation.SchemaTables),
				cfg.Generation.SchemaSampleRows, 5*time.Minute),
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported translator %q", cfg.Generation.Translator)
	}
}

func openAIConfig(cfg config.Config) nl2sql.OpenAIConfig {
	return nl2sql.OpenAIConfig{
		BaseURL:     cfg.Generation.AIBaseURL,
		APIKey:      cfg.Generation.AIAPIKey,
		Model:       cfg.Generation.AIModel,
		Temperature: cfg.Generation.AITemperature,
		Timeout:     cfg.Generation.AITimeout,
	}
}

// SessionStore is the configured store plus its shutdown hook.
type SessionStore struct {
	session.Store
	// Memory is set for the memory backend so callers can run its janitor.
	Memory *session.MemoryStore
	closer func() error
}

func (s *SessionStore) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// RunJanitor sweeps expired memory sessions until ctx is done. Redis expires
// keys itself, so it is a no-op there.
func (s *SessionStore) RunJanitor(ctx context.Context, cfg config.Config) {
	if s.Memory == nil {
		return
	}
	s.Memory.RunJanitor(ctx, cfg.Session.SweepInterval)
}

func OpenSessionStore(ctx context.Context, cfg config.Config, logger *slog.Logger, onExpire func(session.Session)) (*SessionStore, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		memory := session.NewMemoryStore(session.MemoryOptions{
			TTL:      cfg.Session.TTL,
			OnExpire: onExpire,
			Logger:   logger,
		})
		return &SessionStore{Store: memory, Memory: memory}, nil
	case config.SessionBackendRedis:
		redisStore, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			Prefix:   cfg.Session.RedisPrefix,
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return nil, err
		}
		return &SessionStore{Store: redisStore, closer: redisStore.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
	}
}

// NewArchiver returns nil when transcript archiving is disabled.
func NewArchiver(ctx context.Context, cfg config.Config) (*archive.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	store, err := OpenObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return archive.NewArchiver(store, cfg.Archive.Prefix, cfg.Agent.AppName)
}

// NewOrchestrator wires the agent to the remote peers.
func NewOrchestrator(cfg config.Config, store session.Store, journal *archive.Journal, logger *slog.Logger) (*agent.Orchestrator, error) {
	client := remote.New(remote.Config{
		Timeout:      cfg.Agent.RemoteTimeout,
		MaxAttempts:  cfg.Agent.MaxAttempts,
		RetryBackoff: cfg.Agent.RetryBackoff,
	}, logger)
	tool, err := agent.NewSearchTool(agent.RemotePipeline{
		Client:      client,
		GenerateURL: cfg.Agent.GenerateURL,
		ExecuteURL:  cfg.Agent.ExecuteURL,
	}, cfg.Agent.ToolTimeout, logger)
	if err != nil {
		return nil, err
	}

	var planner agent.Planner = agent.HeuristicPlanner{}
	if cfg.Agent.Planner == config.PlannerOpenAI {
		chat, err := nl2sql.NewChatClient(openAIConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("initialize planner: %w", err)
		}
		planner, err = agent.NewOpenAIPlanner(chat, logger)
		if err != nil {
			return nil, err
		}
	}
	return agent.New(store, tool, planner, agent.Options{Journal: journal, Logger: logger})
}

// Serve runs the handler until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, cfg config.Config, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

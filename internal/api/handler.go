// Package api serves the HTTP surfaces: the generation and execution peers
// and the agent chat API. Each binary wires only the dependencies it needs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retailsearch/retailsearch/internal/agent"
	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/query"
)

type ReadinessCheck func(ctx context.Context) error

type Generator interface {
	Translate(ctx context.Context, search nl2sql.SearchRequest) (nl2sql.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	// Generator serves POST / and /v1/query/translate.
	Generator Generator
	// Executor serves /v1/query, and POST / when no Generator is set.
	Executor query.Executor
	Agent    *agent.Orchestrator
	Journal  *archive.Journal
	Archiver *archive.Archiver
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	switch {
	case deps.Generator != nil:
		mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
			handleGenerateText(deps, w, r)
		})
	case deps.Executor != nil:
		mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
			handleExecuteText(deps, w, r)
		})
	}
	if deps.Generator != nil {
		mux.HandleFunc("POST /v1/query/translate", func(w http.ResponseWriter, r *http.Request) {
			handleTranslate(deps, w, r)
		})
	}
	if deps.Executor != nil {
		mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
			handleQuery(deps, w, r)
		})
	}

	if deps.Agent != nil {
		mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
			handleCreateSession(cfg, deps, w, r)
		})
		mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
			handleGetSession(deps, w, r)
		})
		mux.HandleFunc("POST /v1/sessions/{id}/turns", func(w http.ResponseWriter, r *http.Request) {
			handleTurn(deps, w, r)
		})
		mux.HandleFunc("POST /v1/sessions/{id}/archive", func(w http.ResponseWriter, r *http.Request) {
			handleArchiveSession(deps, w, r)
		})
		mux.HandleFunc("GET /v1/sessions/{id}/transcripts", func(w http.ResponseWriter, r *http.Request) {
			handleListTranscripts(deps, w, r)
		})
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// PingCheck adapts anything with a Ping method, such as the connection pool.
func PingCheck(pinger interface{ Ping(context.Context) error }) ReadinessCheck {
	return func(ctx context.Context) error {
		return pinger.Ping(ctx)
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

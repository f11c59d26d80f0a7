package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/query"
)

type searchRequest struct {
	Search string `json:"search"`
}

type translateRequest struct {
	Prompt string `json:"prompt"`
}

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]string     `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleGenerateText(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid search request body", false, map[string]any{"details": err.Error()})
		return
	}
	result, err := deps.Generator.Translate(r.Context(), nl2sql.SearchRequest{Text: req.Search})
	if err != nil {
		writeSearchError(r.Context(), w, err)
		return
	}
	writeText(w, result.SQL)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	result, err := deps.Generator.Translate(r.Context(), nl2sql.SearchRequest{Text: req.Prompt})
	if err != nil {
		writeSearchError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
	})
}

// handleExecuteText takes the SQL in the "search" field, matching the
// payload both peers share.
func handleExecuteText(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid search request body", false, map[string]any{"details": err.Error()})
		return
	}
	result, err := deps.Executor.Execute(r.Context(), query.Statement{Text: req.Search})
	if err != nil {
		writeSearchError(r.Context(), w, err)
		return
	}
	writeText(w, result.Text())
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if req.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must not be negative", false, nil)
		return
	}
	result, err := deps.Executor.Execute(r.Context(), query.Statement{Text: req.SQL, RowLimit: req.RowLimit})
	if err != nil {
		writeSearchError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats: map[string]any{
			"row_count":   len(result.Rows),
			"duration_ms": result.Duration.Milliseconds(),
		},
	})
}

// writeSearchError maps pipeline errors onto the peer status contract.
func writeSearchError(ctx context.Context, w http.ResponseWriter, err error) {
	var execErr *query.ExecutionError
	switch {
	case errors.Is(err, nl2sql.ErrEmptySearch):
		writeError(ctx, w, http.StatusBadRequest, "SEARCH_REQUIRED", "search text is required", false, nil)
	case errors.Is(err, query.ErrStatementNotAllowed):
		writeError(ctx, w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only a single read-only SELECT or WITH statement is allowed", false, nil)
	case errors.Is(err, query.ErrInvalidStatement):
		writeError(ctx, w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
	case errors.As(err, &execErr):
		writeError(ctx, w, http.StatusUnprocessableEntity, "EXECUTION_FAILED", "statement execution failed", false, map[string]any{
			"sqlstate": execErr.SQLState,
			"details":  strings.TrimSpace(execErr.Err.Error()),
		})
	case errors.Is(err, query.ErrConnectionUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "CONNECTION_UNAVAILABLE", "no database connection available", true, nil)
	case errors.Is(err, nl2sql.ErrTranslationEmpty):
		writeError(ctx, w, http.StatusNotFound, "TRANSLATION_EMPTY", "no statement could be generated for the search", false, nil)
	case errors.Is(err, nl2sql.ErrTranslationUnavailable):
		writeError(ctx, w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate search", true, map[string]any{"details": err.Error()})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "unexpected error", true, nil)
	}
}

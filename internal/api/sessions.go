package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/session"
)

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type turnRequest struct {
	Text string `json:"text"`
}

func handleCreateSession(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = cfg.Agent.UserID
	}

	s, err := deps.Agent.StartSession(r.Context(), cfg.Agent.AppName, userID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "failed to create session", true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": s.ID,
		"user_id":    s.UserID,
		"app_name":   s.AppName,
		"state":      s.State,
	})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, err := deps.Agent.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func handleTurn(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid turn request body", false, map[string]any{"details": err.Error()})
		return
	}
	reply, err := deps.Agent.Turn(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	response := map[string]any{
		"reply":     reply.Text,
		"used_tool": reply.UsedTool,
		"seq":       reply.Record.Seq,
	}
	if reply.ToolStatus != "" {
		response["tool_status"] = reply.ToolStatus
	}
	writeJSON(w, http.StatusOK, response)
}

func handleArchiveSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil || deps.Journal == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "transcript archive is not configured", false, nil)
		return
	}
	sessionID := r.PathValue("id")
	if _, err := deps.Agent.Session(r.Context(), sessionID); err != nil {
		writeSessionError(w, r, err)
		return
	}
	key, err := archive.Flush(r.Context(), deps.Journal, deps.Archiver, sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_FAILED", "failed to archive transcript", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "object_key": key})
}

func handleListTranscripts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "transcript archive is not configured", false, nil)
		return
	}
	sessionID := r.PathValue("id")
	records, err := deps.Archiver.ReadSession(r.Context(), sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_READ_FAILED", "failed to read transcripts", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "turns": records})
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_STORE_FAILED", "session store failed", true, nil)
}

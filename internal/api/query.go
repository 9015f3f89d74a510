package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/koopa0/tutor/internal/agent"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
	"github.com/koopa0/tutor/internal/tools"
)

// maxQueryBytes bounds the request body of POST /api/query.
const maxQueryBytes = 64 * 1024

type queryHandler struct {
	answerer Answerer
	sessions *session.Store
	logger   log.Logger
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Answer    string         `json:"answer"`
	Sources   []tools.Source `json:"sources"`
	SessionID string         `json:"session_id"`
}

// query handles POST /api/query. A missing session_id starts a new session
// whose id is returned in the response.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "empty_query", "query must not be empty")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.sessions.Create()
	}

	resp, err := h.answerer.Answer(r.Context(), query, sessionID)
	if err != nil {
		if errors.Is(err, agent.ErrModelCall) {
			h.logger.Error("model call failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "model_unavailable", "the model could not be reached")
			return
		}
		h.logger.Error("query failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "query failed")
		return
	}

	sources := resp.Sources
	if sources == nil {
		sources = []tools.Source{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    resp.Answer,
		Sources:   sources,
		SessionID: sessionID,
	})
}

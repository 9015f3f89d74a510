package api

import (
	"net/http"

	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
)

type sessionHandler struct {
	sessions *session.Store
	logger   log.Logger
}

// create handles POST /api/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, _ *http.Request) {
	id := h.sessions.Create()
	h.logger.Debug("session created", "session_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// clear handles DELETE /api/sessions/{id}. Clearing an unknown session is a
// no-op so the endpoint stays idempotent.
func (h *sessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id is required")
		return
	}
	h.sessions.Clear(id)
	h.logger.Debug("session cleared", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

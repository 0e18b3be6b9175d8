package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/repressales/salescart/internal/service"
	"github.com/repressales/salescart/pkg/httputil"
)

// SessionHandler handles HTTP requests for session lifecycle endpoints.
type SessionHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(svc *service.CartService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: svc, logger: logger}
}

// Open handles POST /api/v1/sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.OpenSession(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, view)
}

// Resume handles POST /api/v1/sessions/{sessionId}/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "sessionId"))
	if !ok {
		return
	}
	view, err := h.service.ResumeSession(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// Close handles DELETE /api/v1/sessions/{sessionId}
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "sessionId"))
	if !ok {
		return
	}
	if err := h.service.CloseSession(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

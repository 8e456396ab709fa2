package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// AdminProfilesHandler lets operators inspect and reset conversations.
type AdminProfilesHandler struct {
	profiles conversation.ProfileStore
	history  conversation.HistoryStore
	logger   *logging.Logger
}

func NewAdminProfilesHandler(profiles conversation.ProfileStore, history conversation.HistoryStore, logger *logging.Logger) *AdminProfilesHandler {
	if profiles == nil {
		panic("handlers: profile store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminProfilesHandler{profiles: profiles, history: history, logger: logger}
}

// Routes mounts the handler under /admin/profiles.
func (h *AdminProfilesHandler) Routes(r chi.Router) {
	r.Get("/{contactID}", h.GetProfile)
	r.Delete("/{contactID}", h.DeleteProfile)
	r.Get("/{contactID}/history", h.GetHistory)
}

// GetProfile returns the stored profile, including a declined budget.
func (h *AdminProfilesHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(chi.URLParam(r, "contactID"))
	profile, err := h.profiles.Get(r.Context(), contactID)
	switch {
	case errors.Is(err, conversation.ErrProfileNotFound):
		jsonError(w, "profile not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("admin get profile", "contact_id", contactID, "error", err)
		jsonError(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// DeleteProfile resets the conversation; the next message starts at the
// greeting.
func (h *AdminProfilesHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(chi.URLParam(r, "contactID"))
	if err := h.profiles.Delete(r.Context(), contactID); err != nil {
		h.logger.Error("admin delete profile", "contact_id", contactID, "error", err)
		jsonError(w, "failed to delete profile", http.StatusInternalServerError)
		return
	}
	h.logger.Info("profile reset by operator", "contact_id", contactID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminProfilesHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(chi.URLParam(r, "contactID"))
	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"contact_id": contactID, "messages": []conversation.HistoryEntry{}})
		return
	}
	entries, err := h.history.Recent(r.Context(), contactID)
	if err != nil {
		h.logger.Error("admin history", "contact_id", contactID, "error", err)
		jsonError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []conversation.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contact_id": contactID, "messages": entries})
}

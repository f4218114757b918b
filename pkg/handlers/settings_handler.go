package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// SettingsHandler handles the process-lifetime AI provider settings.
type SettingsHandler struct {
	settings services.SettingsService
	logger   *zap.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings services.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// RegisterRoutes registers the settings routes.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /settings", h.Get)
	mux.HandleFunc("POST /settings", h.Update)
	mux.HandleFunc("POST /settings/test-api-key", h.TestAPIKey)
}

// Get returns the active settings with keys masked.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, h.settings.Get())
}

// Update applies a partial update and swaps the provider clients.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsUpdate
	if !decodeJSON(w, r, h.logger, &patch) {
		return
	}

	view, err := h.settings.Update(r.Context(), patch)
	if err != nil {
		writeServiceError(w, h.logger, "Update settings", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    view,
		Message: "Settings updated for this process",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TestAPIKey tests a candidate configuration without saving it.
// A failed connection is reported in the result, not as an HTTP error.
func (h *SettingsHandler) TestAPIKey(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsUpdate
	if !decodeJSON(w, r, h.logger, &patch) {
		return
	}

	result, err := h.settings.TestAPIKey(r.Context(), patch)
	if err != nil {
		writeServiceError(w, h.logger, "Test API key", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

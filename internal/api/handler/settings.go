package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/settings"
)

// SettingsHandler handles runtime settings endpoints.
type SettingsHandler struct {
	service *settings.Service
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(service *settings.Service) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// ListSettings handles GET /api/settings.
func (h *SettingsHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	all := h.service.All(r.Context())
	items := make([]models.Setting, 0, len(all))
	for _, s := range all {
		item := models.Setting{Key: s.Key, Value: s.Value}
		if !s.UpdatedAt.IsZero() {
			ts := models.Timestamp(s.UpdatedAt)
			item.UpdatedAt = &ts
		}
		items = append(items, item)
	}
	response.JSON(w, r, http.StatusOK, models.SettingsList{Items: items})
}

// UpdateSettings handles PUT /api/settings. Unknown keys reject the whole update.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input models.SettingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if len(input.Items) == 0 {
		response.BadRequest(w, r, "items must not be empty", nil)
		return
	}

	now := time.Now()
	updates := make([]*settings.Setting, 0, len(input.Items))
	for _, item := range input.Items {
		updates = append(updates, &settings.Setting{Key: item.Key, Value: item.Value, UpdatedAt: now})
	}

	if err := h.service.Update(r.Context(), updates); err != nil {
		writeError(w, r, err)
		return
	}
	h.ListSettings(w, r)
}

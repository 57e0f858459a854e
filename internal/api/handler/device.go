package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatewarden/gatewarden/internal/accesslog"
	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/device"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AdapterCache drops the cached vendor adapter of a removed device.
type AdapterCache interface {
	Forget(deviceID string)
}

// DeviceHandler handles the device registry endpoints.
type DeviceHandler struct {
	service  *device.Service
	logs     accesslog.Repository
	adapters AdapterCache
}

// NewDeviceHandler creates a new DeviceHandler. logs and adapters may be nil.
func NewDeviceHandler(service *device.Service, logs accesslog.Repository, adapters AdapterCache) *DeviceHandler {
	return &DeviceHandler{service: service, logs: logs, adapters: adapters}
}

// ListDevices handles GET /api/devices.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), r.URL.Query().Get("brand"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// CreateDevice handles POST /api/devices.
func (h *DeviceHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	result, err := h.service.Create(r.Context(), &input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, r, "/api/devices/"+result.ID, result)
}

// GetDevice handles GET /api/devices/{deviceId}.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// UpdateDevice handles PUT /api/devices/{deviceId}.
func (h *DeviceHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	result, err := h.service.Update(r.Context(), chi.URLParam(r, "deviceId"), &input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// DeleteDevice handles DELETE /api/devices/{deviceId}.
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if err := h.service.Delete(r.Context(), deviceID); err != nil {
		writeError(w, r, err)
		return
	}
	if h.adapters != nil {
		h.adapters.Forget(deviceID)
	}
	response.NoContent(w, r)
}

// ListAccessLogs handles GET /api/devices/{deviceId}/logs.
func (h *DeviceHandler) ListAccessLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		response.ServiceUnavailable(w, r, "access log store is not configured")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	if _, err := h.service.Get(r.Context(), deviceID); err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.logs.List(r.Context(), accesslog.ListOptions{DeviceID: deviceID, Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]models.AccessLogEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.AccessLogEntry{
			ID:          e.ID,
			DeviceID:    e.DeviceID,
			Source:      string(e.Source),
			OccurredAt:  models.Timestamp(e.OccurredAt),
			UserRef:     e.UserRef,
			UserName:    e.UserName,
			Credential:  e.Credential,
			Method:      e.Method,
			Decision:    e.Decision,
			EvidenceKey: e.EvidenceKey,
		})
	}
	response.JSON(w, r, http.StatusOK, models.AccessLogList{Items: items, Meta: models.ListMeta{Count: len(items), Limit: limit}})
}

// parseLimit reads the limit query parameter, writing a 400 when it is malformed.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		response.BadRequest(w, r, "limit must be between 1 and 500", []models.FieldError{
			{Field: "limit", Message: "must be between 1 and 500", Code: "range"},
		})
		return 0, false
	}
	return limit, true
}

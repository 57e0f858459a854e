package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/devicesync"
)

// SyncService runs and reports device sync sessions.
type SyncService interface {
	Start(ctx context.Context, deviceID string, mode devicesync.Mode) (devicesync.Snapshot, error)
	Get(deviceID string) (devicesync.Snapshot, error)
	Reset(deviceID string) error
	Preview(ctx context.Context, deviceID string) (*devicesync.Reconciliation, error)
}

// ExportPolicy reports whether exports to devices are currently switched off.
type ExportPolicy interface {
	ExportsDisabled(ctx context.Context) bool
}

// SyncHandler handles the device sync endpoints.
type SyncHandler struct {
	syncs  SyncService
	policy ExportPolicy
}

// NewSyncHandler creates a new SyncHandler. policy may be nil.
func NewSyncHandler(syncs SyncService, policy ExportPolicy) *SyncHandler {
	return &SyncHandler{syncs: syncs, policy: policy}
}

// StartSync handles POST /api/devices/{deviceId}/sync/{mode}. The run continues in the
// background; poll the Location for progress.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	mode := devicesync.Mode(chi.URLParam(r, "mode"))
	if !mode.Valid() {
		writeError(w, r, devicesync.ErrInvalidMode)
		return
	}
	if mode == devicesync.ModeExport && h.policy != nil && h.policy.ExportsDisabled(r.Context()) {
		response.Forbidden(w, r, "exports to devices are disabled")
		return
	}

	snapshot, err := h.syncs.Start(r.Context(), deviceID, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Accepted(w, r, "/api/devices/"+deviceID+"/sync", toSyncSession(snapshot))
}

// GetSync handles GET /api/devices/{deviceId}/sync.
func (h *SyncHandler) GetSync(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.syncs.Get(chi.URLParam(r, "deviceId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toSyncSession(snapshot))
}

// ResetSync handles DELETE /api/devices/{deviceId}/sync.
func (h *SyncHandler) ResetSync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncs.Reset(chi.URLParam(r, "deviceId")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Reconcile handles GET /api/devices/{deviceId}/reconcile. Pass keys=true to list the
// affected keys instead of only counting them.
func (h *SyncHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	rec, err := h.syncs.Preview(r.Context(), deviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary := models.ReconcileSummary{
		DeviceID:          deviceID,
		NewInCentral:      len(rec.NewInCentral),
		MissingEnrichment: len(rec.MissingEnrichment),
		ToSync:            len(rec.ToSync),
	}
	if r.URL.Query().Get("keys") == "true" {
		summary.Keys = rec.ToSync
	}
	response.JSON(w, r, http.StatusOK, summary)
}

func toSyncSession(s devicesync.Snapshot) models.SyncSession {
	return models.SyncSession{
		ID:        s.ID,
		DeviceID:  s.DeviceID,
		Mode:      string(s.Mode),
		State:     string(s.State),
		Phase:     string(s.Phase),
		Total:     s.Total,
		Processed: s.Processed,
		Percent:   s.Percent,
		Tally: models.SyncTally{
			Success: s.Tally.Success,
			Faces:   s.Tally.Faces,
			Tags:    s.Tally.Tags,
			Failed:  s.Tally.Failed,
			Created: s.Tally.Created,
			Added:   s.Tally.Added,
			Deleted: s.Tally.Deleted,
		},
		Current:    s.Current,
		Error:      s.Error,
		StartedAt:  models.TimestampPtr(s.StartedAt),
		FinishedAt: models.TimestampPtr(s.FinishedAt),
	}
}

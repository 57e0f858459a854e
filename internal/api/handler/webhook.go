package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/api/middleware"
	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/webhook"
)

// WebhookHandler receives event notifications pushed by terminals.
type WebhookHandler struct {
	ingestor *webhook.Ingestor
	metrics  *middleware.Metrics
	logger   zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. metrics may be nil.
func NewWebhookHandler(ingestor *webhook.Ingestor, metrics *middleware.Metrics, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor, metrics: metrics, logger: logger}
}

// Receive handles POST and GET /api/webhooks/{vendor}. Akuvox terminals send their action
// URLs as GET query strings; Hikvision posts JSON, XML or multipart with snapshots.
// Duplicates are acknowledged with 200 so the terminal stops retrying.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	vendorName := chi.URLParam(r, "vendor")

	if r.ContentLength > webhook.MaxBodyBytes {
		h.metrics.RecordWebhook(r, vendorName, "rejected")
		response.PayloadTooLarge(w, r, webhook.ErrPayloadTooLarge.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, webhook.MaxBodyBytes)

	e, created, err := h.ingestor.Ingest(r.Context(), vendorName, r)
	if err != nil {
		h.metrics.RecordWebhook(r, vendorName, "rejected")
		switch {
		case errors.Is(err, webhook.ErrUnknownVendor):
			response.NotFound(w, r, err.Error())
		case errors.Is(err, webhook.ErrPayloadTooLarge):
			response.PayloadTooLarge(w, r, err.Error())
		case errors.Is(err, webhook.ErrMalformedPayload):
			h.logger.Warn().Err(err).
				Str("vendor", vendorName).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected webhook payload")
			response.BadRequest(w, r, err.Error(), nil)
		default:
			h.logger.Error().Err(err).Str("vendor", vendorName).Msg("Webhook ingestion failed")
			response.InternalError(w, r, "webhook ingestion failed")
		}
		return
	}

	ack := models.WebhookAck{ID: e.ID, Duplicate: !created}
	if created {
		h.metrics.RecordWebhook(r, vendorName, "accepted")
		response.JSON(w, r, http.StatusAccepted, ack)
		return
	}
	h.metrics.RecordWebhook(r, vendorName, "duplicate")
	response.JSON(w, r, http.StatusOK, ack)
}

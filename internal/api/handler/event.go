package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/api/middleware"
	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/event"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// EventHandler handles the event history and live stream endpoints.
type EventHandler struct {
	distributor    *event.Distributor
	metrics        *middleware.Metrics
	allowedOrigins []string
	logger         zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewEventHandler creates a new EventHandler. An empty allowedOrigins list admits only
// same-origin and non-browser clients; "*" admits every origin.
func NewEventHandler(distributor *event.Distributor, metrics *middleware.Metrics, allowedOrigins []string, logger zerolog.Logger) *EventHandler {
	h := &EventHandler{
		distributor:    distributor,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ListEvents handles GET /api/events.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.EventList{
		Items:    toEvents(h.distributor.History()),
		Capacity: h.distributor.Capacity(),
	})
}

// ClearEvents handles DELETE /api/events.
func (h *EventHandler) ClearEvents(w http.ResponseWriter, r *http.Request) {
	h.distributor.Clear()
	response.NoContent(w, r)
}

// StreamEvents handles GET /api/events/stream. The first frame is the history, each later
// frame one new event. A client too slow to keep up loses events rather than stalling ingestion.
func (h *EventHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, history := h.distributor.Subscribe()
	defer sub.Close()
	defer h.metrics.StreamOpened(r.Context())()

	log := h.logger.With().Str("remote_addr", r.RemoteAddr).Logger()
	log.Info().Int("history", len(history)).Msg("Event stream opened")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go readUntilClosed(conn, cancel)

	if err := writeFrame(conn, models.StreamMessage{Type: models.StreamTypeHistory, Events: toEvents(history)}); err != nil {
		log.Debug().Err(err).Msg("Writing event history failed")
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("dropped", sub.Dropped()).Msg("Event stream closed")
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			out := toEvent(e)
			if err := writeFrame(conn, models.StreamMessage{Type: models.StreamTypeEvent, Event: &out}); err != nil {
				log.Debug().Err(err).Msg("Writing event failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				log.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// readUntilClosed consumes client frames so pongs and close frames are processed, and
// cancels the stream once the connection is gone.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg models.StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (h *EventHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func toEvents(events []event.CanonicalEvent) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		out = append(out, toEvent(e))
	}
	return out
}

func toEvent(e event.CanonicalEvent) models.Event {
	return models.Event{
		ID:          e.ID,
		Timestamp:   models.Timestamp(e.Timestamp),
		Source:      string(e.Source),
		Category:    e.Category,
		DeviceID:    e.DeviceID,
		DeviceName:  e.DeviceName,
		DeviceMAC:   e.DeviceMAC,
		Decision:    string(e.Decision),
		Value:       e.Value,
		UserID:      e.UserID,
		UserName:    e.UserName,
		EvidenceKey: e.EvidenceKey,
		EvidenceURL: e.EvidenceURL,
		Raw:         e.Raw,
	}
}

package models

import "encoding/json"

// Event is the API view of a canonical access event.
type Event struct {
	ID          string          `json:"id"`
	Timestamp   Timestamp       `json:"timestamp"`
	Source      string          `json:"source"`
	Category    string          `json:"category"`
	DeviceID    string          `json:"deviceId,omitempty"`
	DeviceName  string          `json:"deviceName,omitempty"`
	DeviceMAC   string          `json:"deviceMac,omitempty"`
	Decision    string          `json:"decision"`
	Value       string          `json:"value,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	UserName    string          `json:"userName,omitempty"`
	EvidenceKey string          `json:"evidenceKey,omitempty"`
	EvidenceURL string          `json:"evidenceUrl,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// EventList is the recent-event history, newest first.
type EventList struct {
	Items    []Event `json:"items"`
	Capacity int     `json:"capacity"`
}

// Stream message types.
const (
	StreamTypeHistory = "history"
	StreamTypeEvent   = "event"
)

// StreamMessage is one frame on the live event WebSocket. The first frame carries the
// history, every later frame one event.
type StreamMessage struct {
	Type   string  `json:"type"`
	Events []Event `json:"events,omitempty"`
	Event  *Event  `json:"event,omitempty"`
}

// WebhookAck acknowledges an ingested webhook.
type WebhookAck struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

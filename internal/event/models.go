// Package event holds the canonical access event, its bounded history, and the distributor
// that fans new events out to live observers and sinks.
package event

import (
	"encoding/json"
	"time"
)

// Source is the vendor an event was received from.
type Source string

const (
	SourceHikvision Source = "hikvision"
	SourceAkuvox    Source = "akuvox"
)

// Decision is the access outcome carried by an event.
type Decision string

const (
	DecisionGranted Decision = "GRANTED"
	DecisionDenied  Decision = "DENIED"
	// DecisionNoRead is a detection whose credential could not be read.
	DecisionNoRead Decision = "NO_READ"
	// DecisionNone marks telemetry without an access decision.
	DecisionNone Decision = "NONE"
)

// Categories of canonical events.
const (
	CategoryANPR   = "anpr"
	CategoryAccess = "access"
	CategoryFace   = "face"
	CategoryCard   = "card"
	CategoryPIN    = "pin"
	CategoryQR     = "qr"
	CategoryUnlock = "unlock"
	CategoryRelay  = "relay"
	CategoryInput  = "input"
	CategoryCall   = "call"
	CategorySystem = "system"
	CategoryOther  = "other"
)

// CanonicalEvent is the vendor-neutral form of a webhook event.
type CanonicalEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Category  string    `json:"category"`

	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	DeviceMAC  string `json:"deviceMac,omitempty"`

	Decision Decision `json:"decision"`
	Value    string   `json:"value,omitempty"`
	UserID   string   `json:"userId,omitempty"`
	UserName string   `json:"userName,omitempty"`

	// EvidenceKey addresses the image stored with the event, if any.
	EvidenceKey string `json:"evidenceKey,omitempty"`

	// EvidenceURL is where the terminal serves the event snapshot when it was not pushed.
	EvidenceURL string `json:"evidenceUrl,omitempty"`

	// Raw is the vendor payload, kept for diagnostics only.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Package accesslog persists access history: entries replicated from terminals and canonical
// events received through webhooks.
package accesslog

import "time"

// Source tells where an entry came from.
type Source string

const (
	SourceDevice  Source = "device"
	SourceWebhook Source = "webhook"
)

// Entry is one access occurrence. (DeviceID, Source, ExternalID) is unique.
type Entry struct {
	ID          string
	DeviceID    string
	Source      Source
	ExternalID  string
	OccurredAt  time.Time
	UserRef     string
	UserName    string
	Credential  string
	Method      string
	Decision    string
	EvidenceKey string
	CreatedAt   time.Time
}

// ListOptions narrows a listing.
type ListOptions struct {
	DeviceID string
	Limit    int
}

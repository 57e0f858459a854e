// Package vendor defines the canonical contract every terminal brand implements, and the
// registry that selects one implementation per device.
//
// Nothing outside the brand packages branches on the brand: callers obtain an Adapter from
// Registry.ForDevice and discover optional capabilities with type assertions.
package terminal

import (
	"context"
	"time"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/identity"
)

// IdentityRecord is one subject as stored in a device's onboard directory.
// It is only valid for the sync pass that read it.
type IdentityRecord struct {
	// Index is the device-internal numeric index, 0 when the vendor has none.
	Index int

	// UserRef is the device's reference for the subject (employee number, user id).
	UserRef string

	Name     string
	PIN      string
	CardCode string // card serial or license plate
	FaceURL  string

	// Denied marks a deny-list entry, such as a blocked plate. It grants nothing.
	Denied bool
}

// Key is the reconciliation key of the record: the normalized card or plate code, or the
// normalized user reference for subjects enrolled without one.
func (r IdentityRecord) Key() string {
	if k := identity.NormalizeKey(r.CardCode); k != "" {
		return k
	}
	return identity.NormalizeKey(r.UserRef)
}

// Page is one page of a directory listing.
type Page struct {
	Records []IdentityRecord

	// Total is the vendor's claimed record count for the whole listing.
	Total int

	// IsLastPage is set when the vendor signals the listing is exhausted.
	IsLastPage bool
}

// AccessLog is one entry of a device's hardware access history.
type AccessLog struct {
	// ExternalID identifies the entry on the device; unique per device.
	ExternalID string
	Time       time.Time
	UserRef    string
	Name       string
	CardCode   string
	Method     string
	Granted    bool
}

// Adapter is the canonical contract of a terminal.
type Adapter interface {
	// Brand returns the vendor implemented by the adapter.
	Brand() device.Brand

	// Device returns the terminal the adapter talks to.
	Device() *device.Device

	// ListIdentitiesPage returns the page starting at offset. cursor identifies the
	// pagination session and must stay constant for one listing run.
	ListIdentitiesPage(ctx context.Context, cursor string, offset int) (*Page, error)

	// AddIdentity enrolls a subject on the device.
	AddIdentity(ctx context.Context, record IdentityRecord) error

	// DeleteIdentity removes a subject from the device.
	DeleteIdentity(ctx context.Context, index int, userRef string) error
}

// LogSource is implemented by adapters that expose hardware access history.
type LogSource interface {
	ListAccessLogs(ctx context.Context) ([]AccessLog, error)
}

// Replacer is implemented by adapters that support full-replace export.
type Replacer interface {
	// ReplaceAll wipes the device directory and enrolls records.
	ReplaceAll(ctx context.Context, records []IdentityRecord) error
}

// FaceFetcher is implemented by adapters that can download enrolled face images.
type FaceFetcher interface {
	// FetchFace returns the image bytes and content type.
	FetchFace(ctx context.Context, url string) ([]byte, string, error)
}

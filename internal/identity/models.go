// Package identity holds the central directory of enrolled subjects: users, the credentials
// they present at terminals, and vehicle profiles that enrich plate credentials.
//
// Credentials are compared across the device/database boundary by their normalized key only.
// Two credentials of different types may share a key; the store's uniqueness is (type, key).
package identity

import (
	"strings"
	"time"
)

// CredentialType is the kind of token a subject presents.
type CredentialType string

const (
	CredentialPlate CredentialType = "PLATE"
	CredentialTag   CredentialType = "TAG"
	CredentialFace  CredentialType = "FACE"
	CredentialPIN   CredentialType = "PIN"
)

// Valid reports whether the type is known.
func (t CredentialType) Valid() bool {
	switch t {
	case CredentialPlate, CredentialTag, CredentialFace, CredentialPIN:
		return true
	default:
		return false
	}
}

// User is one enrolled subject.
type User struct {
	// ID is the unique user identifier (format: usr_XXXX).
	ID string

	// Name is the display name, possibly empty for plates imported from a camera.
	Name string

	// ExternalRef is the subject's reference on the device it was imported from.
	ExternalRef string

	// SourceDeviceID is the device the subject was first imported from, if any.
	SourceDeviceID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential is the central representation of an access token.
type Credential struct {
	ID        string
	Type      CredentialType
	Value     string
	Key       string
	UserID    string
	CreatedAt time.Time
}

// Vehicle is the enrichment profile of a plate credential.
type Vehicle struct {
	ID          string
	UserID      string
	PlateKey    string
	Description string
	CreatedAt   time.Time
}

// Identity is a user together with its credentials.
type Identity struct {
	User        User
	Credentials []Credential
}

// First returns the first credential of the given type, or nil.
func (i *Identity) First(t CredentialType) *Credential {
	for k := range i.Credentials {
		if i.Credentials[k].Type == t {
			return &i.Credentials[k]
		}
	}
	return nil
}

// CredentialInput is one credential to enroll.
type CredentialInput struct {
	Type  CredentialType
	Value string
}

// Enrollment describes a subject read from a device, to be upserted centrally.
type Enrollment struct {
	ExternalRef    string
	Name           string
	SourceDeviceID string
	Credentials    []CredentialInput

	// VehicleDescription labels vehicle profiles created for plate credentials.
	VehicleDescription string
}

// UpsertResult reports the side effects of one UpsertIdentity call.
type UpsertResult struct {
	UserID             string
	UserCreated        bool
	CredentialsCreated int
	VehiclesCreated    int
}

// Changed reports whether the upsert wrote anything.
func (r *UpsertResult) Changed() bool {
	return r.UserCreated || r.CredentialsCreated > 0 || r.VehiclesCreated > 0
}

// CredentialFilter narrows credential listings.
type CredentialFilter struct {
	Types []CredentialType
}

func (f CredentialFilter) matches(t CredentialType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}

// NormalizeKey reduces a credential value to its comparison key: trimmed, upper-cased and
// stripped of every rune outside [A-Z0-9].
func NormalizeKey(value string) string {
	upper := strings.ToUpper(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

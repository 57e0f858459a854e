// Package device provides the registry of access-control terminals in the fleet.
package device

import (
	"errors"
	"fmt"
	"time"
)

// Repository errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceExists   = errors.New("device already exists")
)

// Brand identifies the vendor of a terminal. The set is closed: every brand has exactly one
// vendor adapter.
type Brand string

const (
	BrandHikvision Brand = "HIKVISION"
	BrandAkuvox    Brand = "AKUVOX"
)

// Valid reports whether the brand is one of the supported vendors.
func (b Brand) Valid() bool {
	switch b {
	case BrandHikvision, BrandAkuvox:
		return true
	default:
		return false
	}
}

// Class is the kind of terminal, which decides what the onboard directory holds.
type Class string

const (
	// ClassLPRCamera holds a license plate allow list.
	ClassLPRCamera Class = "LPR_CAMERA"
	// ClassFaceTerminal holds persons with faces, cards and PINs.
	ClassFaceTerminal Class = "FACE_TERMINAL"
)

// Valid reports whether the class is known.
func (c Class) Valid() bool {
	return c == ClassLPRCamera || c == ClassFaceTerminal
}

// Default onboard directory limits, used when a device has no explicit capacity.
const (
	DefaultHikvisionLPRCapacity  = 10000
	DefaultHikvisionFaceCapacity = 3000
	DefaultAkuvoxCapacity        = 20000
)

// Device represents one physical terminal. Credentials are the device's own web credentials.
type Device struct {
	ID        string
	Name      string
	Brand     Brand
	Class     Class
	Address   string
	Username  string
	Password  string
	MAC       string
	Capacity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveCapacity returns the configured capacity or the vendor default.
func (d *Device) EffectiveCapacity() int {
	if d.Capacity > 0 {
		return d.Capacity
	}
	switch {
	case d.Brand == BrandHikvision && d.Class == ClassLPRCamera:
		return DefaultHikvisionLPRCapacity
	case d.Brand == BrandHikvision:
		return DefaultHikvisionFaceCapacity
	default:
		return DefaultAkuvoxCapacity
	}
}

// String returns a short operator-facing label.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s @ %s)", d.Name, d.Brand, d.Address)
}

// ListOptions contains options for listing devices.
type ListOptions struct {
	Limit int
	Brand Brand
}

// ListResult contains the result of listing devices.
type ListResult struct {
	Items      []*Device
	NextCursor string
}

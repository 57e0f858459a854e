package device

import "context"

// Repository defines the interface for device persistence.
type Repository interface {
	// Get retrieves a device by ID.
	Get(ctx context.Context, id string) (*Device, error)

	// GetByMAC retrieves a device by its MAC address.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// List retrieves devices ordered by name.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Create creates a new device.
	Create(ctx context.Context, device *Device) error

	// Update updates an existing device.
	Update(ctx context.Context, device *Device) error

	// Upsert creates or updates a device by ID.
	// Returns true if a new device was created, false if updated.
	Upsert(ctx context.Context, device *Device) (created bool, err error)

	// Delete deletes a device.
	Delete(ctx context.Context, id string) error
}

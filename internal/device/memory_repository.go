package device

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs tests and single-node deployments seeded from a fleet file.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by device ID
	macs    map[string]string  // normalized MAC -> device ID
}

// NewInMemoryRepository creates a new in-memory device repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices: make(map[string]*Device),
		macs:    make(map[string]string),
	}
}

// Get retrieves a device by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(device), nil
}

// GetByMAC retrieves a device by MAC address. Separators and case are ignored.
func (r *InMemoryRepository) GetByMAC(_ context.Context, mac string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.macs[NormalizeMAC(mac)]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(r.devices[id]), nil
}

// List retrieves devices ordered by name.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Device, 0, len(r.devices))
	for _, device := range r.devices {
		if opts.Brand != "" && device.Brand != opts.Brand {
			continue
		}
		items = append(items, copyDevice(device))
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Name == items[j].Name {
			return items[i].ID < items[j].ID
		}
		return items[i].Name < items[j].Name
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	result := &ListResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.NextCursor = items[limit-1].ID
	}

	return result, nil
}

// Create creates a new device.
func (r *InMemoryRepository) Create(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.ID]; ok {
		return ErrDeviceExists
	}

	r.put(device)
	return nil
}

// Update updates an existing device.
func (r *InMemoryRepository) Update(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.devices[device.ID]
	if !ok {
		return ErrDeviceNotFound
	}

	delete(r.macs, NormalizeMAC(existing.MAC))
	r.put(device)
	return nil
}

// Upsert creates or updates a device by ID.
// Returns true if a new device was created, false if updated.
func (r *InMemoryRepository) Upsert(_ context.Context, device *Device) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.devices[device.ID]
	if ok {
		delete(r.macs, NormalizeMAC(existing.MAC))
		updated := copyDevice(device)
		updated.CreatedAt = existing.CreatedAt
		r.put(updated)
		return false, nil
	}

	r.put(device)
	return true, nil
}

// Delete deletes a device.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}

	delete(r.macs, NormalizeMAC(device.MAC))
	delete(r.devices, id)
	return nil
}

// put stores a copy of the device. Callers hold the write lock.
func (r *InMemoryRepository) put(device *Device) {
	r.devices[device.ID] = copyDevice(device)
	if mac := NormalizeMAC(device.MAC); mac != "" {
		r.macs[mac] = device.ID
	}
}

// NormalizeMAC reduces a MAC address to lower-case hex digits without separators.
func NormalizeMAC(mac string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(mac) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// copyDevice creates a copy of a device.
func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}
	deviceCopy := *d
	return &deviceCopy
}

var _ Repository = (*InMemoryRepository)(nil)

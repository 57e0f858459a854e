package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Reachability summarises a device's breaker state for operators.
type Reachability string

const (
	Reachable   Reachability = "reachable"
	Probing     Reachability = "probing"
	Unreachable Reachability = "unreachable"
)

// ReachabilityOf maps a breaker state.
func ReachabilityOf(s gobreaker.State) Reachability {
	switch s {
	case gobreaker.StateOpen:
		return Unreachable
	case gobreaker.StateHalfOpen:
		return Probing
	default:
		return Reachable
	}
}

// DeviceHealth is the observed reachability of one terminal.
type DeviceHealth struct {
	DeviceID            string
	Reachability        Reachability
	ConsecutiveFailures uint32
	// Trips counts how often the circuit opened since the client was created.
	Trips         int64
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Registry tracks device clients and their health. A nil *Registry records nothing.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*tracked
}

type tracked struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*tracked)}
}

// Register tracks client under deviceID, replacing an earlier client and its history.
func (r *Registry) Register(deviceID string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[deviceID] = &tracked{client: client}
}

// Unregister stops tracking a device.
func (r *Registry) Unregister(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, deviceID)
}

// Client returns the client registered for deviceID, or nil.
func (r *Registry) Client(deviceID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.devices[deviceID]; ok {
		return t.client
	}
	return nil
}

// RecordSuccess stamps a successful exchange.
func (r *Registry) RecordSuccess(deviceID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.devices[deviceID]; ok {
		now := time.Now()
		t.lastSuccessAt = &now
	}
}

// RecordFailure stamps a failed exchange and keeps its message.
func (r *Registry) RecordFailure(deviceID string, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.devices[deviceID]; ok {
		now := time.Now()
		t.lastFailureAt = &now
		if err != nil {
			t.lastError = err.Error()
		}
	}
}

// Device returns the health of one device, or nil if it is not tracked.
func (r *Registry) Device(deviceID string) *DeviceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.devices[deviceID]
	if !ok {
		return nil
	}
	return t.health(deviceID)
}

// Snapshot returns the health of every tracked device, ordered by device ID.
func (r *Registry) Snapshot() []*DeviceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DeviceHealth, 0, len(r.devices))
	for id, t := range r.devices {
		out = append(out, t.health(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (t *tracked) health(deviceID string) *DeviceHealth {
	return &DeviceHealth{
		DeviceID:            deviceID,
		Reachability:        ReachabilityOf(t.client.State()),
		ConsecutiveFailures: t.client.Counts().ConsecutiveFailures,
		Trips:               t.client.Trips(),
		LastSuccessAt:       t.lastSuccessAt,
		LastFailureAt:       t.lastFailureAt,
		LastError:           t.lastError,
	}
}

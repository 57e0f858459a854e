package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
)

// Factory builds the adapter of one brand. cfg is pre-filled with the device ID as name and
// the health registry; the factory may set a transport before creating the client.
type Factory func(d *device.Device, cfg resilience.ClientConfig, logger zerolog.Logger) Adapter

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Factories map[device.Brand]Factory
	Health    *resilience.Registry
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Registry selects and caches one adapter per device.
type Registry struct {
	factories map[device.Brand]Factory
	health    *resilience.Registry
	timeout   time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	adapters map[string]cachedAdapter
}

type cachedAdapter struct {
	adapter Adapter
	version time.Time
}

// NewRegistry creates a new adapter registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	health := cfg.Health
	if health == nil {
		health = resilience.NewRegistry()
	}
	return &Registry{
		factories: cfg.Factories,
		health:    health,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		adapters:  make(map[string]cachedAdapter),
	}
}

// Health returns the device health registry fed by every adapter's client.
func (r *Registry) Health() *resilience.Registry {
	return r.health
}

// ForDevice returns the adapter for a device. Adapters are rebuilt when the device record
// changes, so edited credentials take effect on the next call.
func (r *Registry) ForDevice(d *device.Device) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.adapters[d.ID]; ok && cached.version.Equal(d.UpdatedAt) {
		return cached.adapter, nil
	}

	factory, ok := r.factories[d.Brand]
	if !ok {
		return nil, fmt.Errorf("no adapter for brand %q", d.Brand)
	}

	logger := r.logger.With().Str("device_id", d.ID).Str("brand", string(d.Brand)).Logger()

	cfg := resilience.DefaultClientConfig(d.ID)
	cfg.Registry = r.health
	if r.timeout > 0 {
		cfg.Timeout = r.timeout
	}
	cfg.Breaker.OnStateChange = func(_ string, from, to gobreaker.State) {
		ev := logger.Info()
		if to == gobreaker.StateOpen {
			ev = logger.Warn()
		}
		ev.Str("from", from.String()).Str("to", to.String()).Msg("device circuit changed state")
	}

	adapter := factory(d, cfg, logger)
	r.adapters[d.ID] = cachedAdapter{adapter: adapter, version: d.UpdatedAt}

	return adapter, nil
}

// Forget drops the cached adapter and health entry of a removed device.
func (r *Registry) Forget(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, deviceID)
	r.health.Unregister(deviceID)
}

// FetchEvidence downloads an image served by a device, such as the capture linked by a
// face event.
func (r *Registry) FetchEvidence(ctx context.Context, d *device.Device, url string) ([]byte, string, error) {
	adapter, err := r.ForDevice(d)
	if err != nil {
		return nil, "", err
	}
	fetcher, ok := adapter.(FaceFetcher)
	if !ok {
		return nil, "", fmt.Errorf("%s adapter cannot fetch images", d.Brand)
	}
	return fetcher.FetchFace(ctx, url)
}

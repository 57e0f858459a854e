// Package resilience wraps per-device HTTP clients with a circuit breaker and bounded retries.
//
// Retries only cover a device that answered with a 5xx status. A transport failure (the
// device is unreachable) is returned at once as a *TransportError: retrying a dead terminal
// is left to the operator.
package resilience

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker defaults for one terminal.
const (
	DefaultTripThreshold = 5
	DefaultCooldown      = 30 * time.Second
	DefaultProbes        = 1
)

// BreakerConfig tunes the circuit breaker guarding one device.
type BreakerConfig struct {
	// TripThreshold is the run of consecutive failures that opens the circuit.
	TripThreshold uint32

	// Cooldown is how long an open circuit rejects calls before admitting a probe.
	Cooldown time.Duration

	// Probes is the number of calls admitted while half-open.
	Probes uint32

	// OnStateChange observes transitions, called with the breaker locked.
	OnStateChange func(deviceID string, from, to gobreaker.State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.TripThreshold == 0 {
		c.TripThreshold = DefaultTripThreshold
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Probes == 0 {
		c.Probes = DefaultProbes
	}
	return c
}

// TripAfter opens the circuit after n consecutive failures, regardless of the failure ratio.
func TripAfter(n uint32) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

func newBreaker(deviceID string, cfg BreakerConfig, observers ...func(string, gobreaker.State, gobreaker.State)) *gobreaker.CircuitBreaker[*http.Response] {
	cfg = cfg.withDefaults()
	if cfg.OnStateChange != nil {
		observers = append(observers, cfg.OnStateChange)
	}
	settings := gobreaker.Settings{
		Name:        deviceID,
		MaxRequests: cfg.Probes,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: TripAfter(cfg.TripThreshold),
	}
	if len(observers) > 0 {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			for _, observe := range observers {
				observe(name, from, to)
			}
		}
	}
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}

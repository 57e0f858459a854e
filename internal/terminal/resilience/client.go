package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without touching the network while a device's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures the HTTP client of one device.
type ClientConfig struct {
	// DeviceID names the client in the health registry and in breaker events.
	DeviceID string

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a 5xx answer.
	MaxRetries uint64

	// RetryWait is the first backoff interval; it doubles up to RetryWaitMax.
	RetryWait    time.Duration
	RetryWaitMax time.Duration

	// Transport carries vendor authentication, e.g. a digest transport. Nil uses
	// http.DefaultTransport.
	Transport http.RoundTripper

	Breaker BreakerConfig

	// Registry, if set, tracks the client's health.
	Registry *Registry
}

// DefaultClientConfig returns defaults suited to small embedded web servers.
func DefaultClientConfig(deviceID string) ClientConfig {
	return ClientConfig{
		DeviceID:     deviceID,
		Timeout:      10 * time.Second,
		MaxRetries:   2,
		RetryWait:    200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Client talks to one device through a circuit breaker, retrying 5xx answers.
type Client struct {
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	cfg      ClientConfig
	registry *Registry
	trips    atomic.Int64
}

// NewClient creates the client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig(cfg.DeviceID)
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = def.RetryWait
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}

	c := &Client{
		http:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		cfg:      cfg,
		registry: cfg.Registry,
	}
	c.breaker = newBreaker(cfg.DeviceID, cfg.Breaker, c.countTrip)
	if c.registry != nil {
		c.registry.Register(cfg.DeviceID, c)
	}
	return c
}

// DeviceID returns the device this client talks to.
func (c *Client) DeviceID() string {
	return c.cfg.DeviceID
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Trips returns how often the circuit has opened.
func (c *Client) Trips() int64 {
	return c.trips.Load()
}

// countTrip runs under the breaker's lock and must not call back into it.
func (c *Client) countTrip(_ string, _, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		c.trips.Add(1)
	}
}

// Counts returns the breaker counters for the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req under the request's context. A 5xx answer is retried with exponential
// backoff and, once retries run out, the last 5xx response is returned with a nil error so
// the adapter can read the device's error body. A transport failure returns *TransportError
// at once, and an open circuit returns ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryWait
	bo.MaxInterval = c.cfg.RetryWaitMax
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil {
			last.Body.Close()
		}
		last = resp
	}

	attempt := func() error {
		try := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			try.Body = body
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to the caller
			r, err := c.http.Do(try)
			if err != nil {
				return nil, &TransportError{Err: err}
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if resp != nil {
			keep(resp)
		}

		var te *TransportError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case errors.As(err, &te):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	err := backoff.Retry(attempt, policy)
	var se *ServerError
	switch {
	case err == nil:
		c.registry.RecordSuccess(c.cfg.DeviceID)
		return last, nil
	case errors.As(err, &se) && last != nil:
		c.registry.RecordFailure(c.cfg.DeviceID, err)
		return last, nil
	default:
		keep(nil)
		c.registry.RecordFailure(c.cfg.DeviceID, err)
		return nil, err
	}
}

// ServerError is a 5xx answer from a reachable device.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "device answered " + http.StatusText(e.StatusCode)
}

// TransportError wraps a failure to reach the device at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

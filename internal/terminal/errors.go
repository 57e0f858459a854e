package terminal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
)

// DeviceRef names the terminal involved in a failure.
type DeviceRef struct {
	ID      string
	Name    string
	Address string
	Brand   device.Brand
}

// RefOf builds a DeviceRef from a device.
func RefOf(d *device.Device) DeviceRef {
	return DeviceRef{ID: d.ID, Name: d.Name, Address: d.Address, Brand: d.Brand}
}

func (r DeviceRef) String() string {
	return fmt.Sprintf("%s device %q at %s", r.Brand, r.Name, r.Address)
}

// ConnectivityError means the device could not be reached. Retrying is left to the operator.
type ConnectivityError struct {
	Device DeviceRef
	Op     string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s unreachable: %v", e.Op, e.Device, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// AuthError means the device rejected the configured credentials.
type AuthError struct {
	Device     DeviceRef
	Op         string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s rejected credentials (HTTP %d)", e.Op, e.Device, e.StatusCode)
}

// ProtocolError means the device answered with something the adapter cannot interpret.
type ProtocolError struct {
	Device DeviceRef
	Op     string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Device, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Device, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportFailure converts an error from the resilient client into a typed vendor error.
func TransportFailure(ref DeviceRef, op string, err error) error {
	var te *resilience.TransportError
	if errors.As(err, &te) || errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ConnectivityError{Device: ref, Op: op, Err: err}
	}
	return &ProtocolError{Device: ref, Op: op, Detail: "request failed", Err: err}
}

// CheckStatus converts a non-2xx answer into a typed vendor error.
func CheckStatus(ref DeviceRef, op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Device: ref, Op: op, StatusCode: resp.StatusCode}
	default:
		return &ProtocolError{Device: ref, Op: op, Detail: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}
}

// DeviceOf extracts the device reference carried by a typed vendor error.
func DeviceOf(err error) (DeviceRef, bool) {
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return ce.Device, true
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Device, true
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Device, true
	}
	return DeviceRef{}, false
}

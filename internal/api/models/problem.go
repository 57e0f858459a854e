package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, sent for every API error.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`

	// Device identifies the terminal involved in a device-side failure.
	Device *DeviceRef `json:"device,omitempty"`
}

// DeviceRef names the terminal a device-side problem refers to.
type DeviceRef struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Brand   string `json:"brand"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem types.
const (
	ProblemTypeValidation        = "https://gatewarden.dev/problems/validation-error"
	ProblemTypeUnauthorized      = "https://gatewarden.dev/problems/unauthorized"
	ProblemTypeNotFound          = "https://gatewarden.dev/problems/not-found"
	ProblemTypeConflict          = "https://gatewarden.dev/problems/conflict"
	ProblemTypeTooManyRequests   = "https://gatewarden.dev/problems/too-many-requests"
	ProblemTypeInternal          = "https://gatewarden.dev/problems/internal-error"
	ProblemTypeUnavailable       = "https://gatewarden.dev/problems/service-unavailable"
	ProblemTypeDeviceUnreachable = "https://gatewarden.dev/problems/device-unreachable"
	ProblemTypeDeviceAuth        = "https://gatewarden.dev/problems/device-auth-rejected"
	ProblemTypeDeviceProtocol    = "https://gatewarden.dev/problems/device-protocol-error"
	ProblemTypeForbidden         = "https://gatewarden.dev/problems/forbidden"
	ProblemTypeTLSRequired       = "https://gatewarden.dev/problems/tls-required"
	ProblemTypeUnsupportedMedia  = "https://gatewarden.dev/problems/unsupported-media-type"
	ProblemTypePayloadTooLarge   = "https://gatewarden.dev/problems/payload-too-large"
)

type kind struct {
	title  string
	status int
}

var kinds = map[string]kind{
	ProblemTypeValidation:        {"Validation error", http.StatusBadRequest},
	ProblemTypeUnauthorized:      {"Unauthorized", http.StatusUnauthorized},
	ProblemTypeForbidden:         {"Forbidden", http.StatusForbidden},
	ProblemTypeTLSRequired:       {"TLS required", http.StatusForbidden},
	ProblemTypeNotFound:          {"Not found", http.StatusNotFound},
	ProblemTypeConflict:          {"Conflict", http.StatusConflict},
	ProblemTypePayloadTooLarge:   {"Payload too large", http.StatusRequestEntityTooLarge},
	ProblemTypeUnsupportedMedia:  {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeTooManyRequests:   {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:          {"Internal server error", http.StatusInternalServerError},
	ProblemTypeUnavailable:       {"Service unavailable", http.StatusServiceUnavailable},
	ProblemTypeDeviceUnreachable: {"Device unreachable", http.StatusBadGateway},
	ProblemTypeDeviceAuth:        {"Device rejected credentials", http.StatusFailedDependency},
	ProblemTypeDeviceProtocol:    {"Unexpected device response", http.StatusBadGateway},
}

// NewProblem creates a problem with an explicit title and status.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

// Of creates a problem of a known type, taking title and status from the type. Unknown
// types become internal errors.
func Of(problemType, traceID, detail string) *Problem {
	k, ok := kinds[problemType]
	if !ok {
		problemType, k = ProblemTypeInternal, kinds[ProblemTypeInternal]
	}
	p := NewProblem(problemType, k.title, k.status, traceID)
	p.Detail = detail
	return p
}

// Write sends the problem as application/problem+json, echoing the trace id as request id.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem listing the offending fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := Of(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return Of(ProblemTypeUnauthorized, traceID, detail)
}

func NewForbidden(traceID, detail string) *Problem {
	return Of(ProblemTypeForbidden, traceID, detail)
}

func NewPayloadTooLarge(traceID, detail string) *Problem {
	return Of(ProblemTypePayloadTooLarge, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return Of(ProblemTypeNotFound, traceID, detail)
}

func NewConflict(traceID, detail string) *Problem {
	return Of(ProblemTypeConflict, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return Of(ProblemTypeTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return Of(ProblemTypeInternal, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return Of(ProblemTypeUnavailable, traceID, detail)
}

// NewDeviceProblem creates a problem for a failed call to a terminal. Unknown types are
// reported as protocol errors.
func NewDeviceProblem(problemType string, traceID, detail string, ref DeviceRef) *Problem {
	switch problemType {
	case ProblemTypeDeviceUnreachable, ProblemTypeDeviceAuth:
	default:
		problemType = ProblemTypeDeviceProtocol
	}
	p := Of(problemType, traceID, detail)
	p.Device = &ref
	return p
}

package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/api/models"
)

func TestOf(t *testing.T) {
	p := models.Of(models.ProblemTypeTLSRequired, "req_1", "use https")
	assert.Equal(t, http.StatusForbidden, p.Status)
	assert.Equal(t, "TLS required", p.Title)
	assert.Equal(t, "use https", p.Detail)
	assert.Nil(t, p.Device)

	unknown := models.Of("https://example.invalid/nope", "req_1", "x")
	assert.Equal(t, models.ProblemTypeInternal, unknown.Type)
	assert.Equal(t, http.StatusInternalServerError, unknown.Status)
}

func TestNewBadRequest_CarriesFieldErrors(t *testing.T) {
	p := models.NewBadRequest("req_1", "validation failed", []models.FieldError{{Field: "capacity", Message: "must be positive", Code: "min"}})
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "capacity", p.Errors[0].Field)
}

func TestProblem_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	models.NewConflict("req_abc", "sync already running").Write(rec)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_abc", rec.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.ProblemTypeConflict, body["type"])
	assert.Equal(t, "req_abc", body["traceId"])
	assert.NotContains(t, body, "device")
	assert.NotContains(t, body, "errors")
}

func TestNewDeviceProblem(t *testing.T) {
	ref := models.DeviceRef{Name: "Lobby", Address: "http://10.0.0.9", Brand: "AKUVOX"}

	tests := []struct {
		problemType string
		status      int
		title       string
	}{
		{models.ProblemTypeDeviceUnreachable, http.StatusBadGateway, "Device unreachable"},
		{models.ProblemTypeDeviceAuth, http.StatusFailedDependency, "Device rejected credentials"},
		{models.ProblemTypeDeviceProtocol, http.StatusBadGateway, "Unexpected device response"},
		{"unrecognised", http.StatusBadGateway, "Unexpected device response"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			p := models.NewDeviceProblem(tt.problemType, "req_1", "detail", ref)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.title, p.Title)
			require.NotNil(t, p.Device)
			assert.Equal(t, "Lobby", p.Device.Name)
		})
	}
}

func TestStatusConstructors(t *testing.T) {
	tests := []struct {
		p      *models.Problem
		status int
	}{
		{models.NewBadRequest("t", "d", nil), http.StatusBadRequest},
		{models.NewUnauthorized("t", "d"), http.StatusUnauthorized},
		{models.NewForbidden("t", "d"), http.StatusForbidden},
		{models.NewNotFound("t", "d"), http.StatusNotFound},
		{models.NewConflict("t", "d"), http.StatusConflict},
		{models.NewPayloadTooLarge("t", "d"), http.StatusRequestEntityTooLarge},
		{models.NewTooManyRequests("t", "d"), http.StatusTooManyRequests},
		{models.NewInternalError("t", "d"), http.StatusInternalServerError},
		{models.NewServiceUnavailable("t", "d"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.p.Status, tt.p.Title)
		assert.Equal(t, "d", tt.p.Detail)
	}
}

func TestTimestamp_JSON(t *testing.T) {
	ts := models.Timestamp(time.Date(2026, 3, 4, 7, 6, 7, 250_000_000, time.FixedZone("CEST", 2*60*60)))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-04T05:06:07.250Z"`, string(data))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ts.Time().Equal(back.Time()))

	require.NoError(t, json.Unmarshal([]byte(`"2026-03-04T05:06:07Z"`), &back))
	assert.Equal(t, 0, back.Time().Nanosecond())

	assert.Error(t, json.Unmarshal([]byte(`12`), &back))
	assert.Nil(t, models.TimestampPtr(nil))
}

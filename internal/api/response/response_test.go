package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/api/middleware"
	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
)

// serve runs fn behind the RequestID middleware and returns the recorded response.
func serve(method, path string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	middleware.RequestID(fn).ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestJSON(t *testing.T) {
	rec := serve(http.MethodGet, "/api/events", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]int{"count": 2})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestJSON_NilData(t *testing.T) {
	rec := serve(http.MethodGet, "/", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, nil)
	})
	assert.Empty(t, rec.Body.String())
}

func TestCreatedAndAccepted_SetLocation(t *testing.T) {
	rec := serve(http.MethodPost, "/api/devices", func(w http.ResponseWriter, r *http.Request) {
		response.Created(w, r, "/api/devices/dev_1", map[string]string{"id": "dev_1"})
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/devices/dev_1", rec.Header().Get("Location"))

	rec = serve(http.MethodPost, "/api/devices/dev_1/sync/import", func(w http.ResponseWriter, r *http.Request) {
		response.Accepted(w, r, "/api/devices/dev_1/sync", map[string]string{"state": "running"})
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/devices/dev_1/sync", rec.Header().Get("Location"))
}

func TestNoContent(t *testing.T) {
	rec := serve(http.MethodDelete, "/api/events", func(w http.ResponseWriter, r *http.Request) {
		response.NoContent(w, r)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestProblems(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "invalid body", []models.FieldError{{Field: "name", Message: "required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			response.Forbidden(w, r, "exports are disabled")
		}, http.StatusForbidden, models.ProblemTypeForbidden},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "device not found")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) {
			response.Conflict(w, r, "sync already running")
		}, http.StatusConflict, models.ProblemTypeConflict},
		{"too large", func(w http.ResponseWriter, r *http.Request) {
			response.PayloadTooLarge(w, r, "body too large")
		}, http.StatusRequestEntityTooLarge, models.ProblemTypePayloadTooLarge},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "boom")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "database down")
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodGet, "/api/devices/dev_9", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "/api/devices/dev_9", p.Instance)
			assert.Equal(t, rec.Header().Get("X-Request-Id"), p.TraceID)
		})
	}
}

func TestDevice(t *testing.T) {
	ref := models.DeviceRef{Name: "North gate", Address: "http://10.0.0.20", Brand: "HIKVISION"}

	rec := serve(http.MethodPost, "/api/devices/dev_1/sync/import", func(w http.ResponseWriter, r *http.Request) {
		response.Device(w, r, models.ProblemTypeDeviceAuth, "401 from device", ref)
	})

	assert.Equal(t, http.StatusFailedDependency, rec.Code)
	p := decodeProblem(t, rec)
	require.NotNil(t, p.Device)
	assert.Equal(t, ref, *p.Device)
}

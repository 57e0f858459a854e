// Package handler provides HTTP handlers for the GateWarden API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
)

// Checker probes one dependency for readiness.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to a Checker.
type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name implements Checker.
func (c CheckFunc) Name() string { return c.Label }

// Check implements Checker.
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

const checkTimeout = 2 * time.Second

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checkers  []Checker
	devices   *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. devices may be nil when no adapters are built.
func NewOpsHandler(version, buildTime string, devices *resilience.Registry, checkers ...Checker) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checkers:  checkers,
		devices:   devices,
	}
}

// HealthCheck handles GET /api/ops/health - liveness.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /api/ops/ready. Any failing dependency makes the instance unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems, status := h.runChecks(r.Context())

	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /api/ops/status: dependency checks plus per-device reachability
// from the circuit breakers. An unreachable device degrades the system without failing it.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems, status := h.runChecks(r.Context())

	devices := []models.DeviceHealth{}
	if h.devices != nil {
		for _, dh := range h.devices.Snapshot() {
			d := models.DeviceHealth{
				DeviceID:            dh.DeviceID,
				Status:              deviceStatus(dh.Reachability),
				Reachability:        string(dh.Reachability),
				ConsecutiveFailures: dh.ConsecutiveFailures,
				Trips:               dh.Trips,
				LastSuccessAt:       models.TimestampPtr(dh.LastSuccessAt),
				LastFailureAt:       models.TimestampPtr(dh.LastFailureAt),
			}
			if dh.LastError != "" {
				msg := dh.LastError
				d.Message = &msg
			}
			if d.Status != models.HealthStatusOK && status == models.HealthStatusOK {
				status = models.HealthStatusDegraded
			}
			devices = append(devices, d)
		}
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     status,
		Time:       models.Timestamp(time.Now()),
		Subsystems: subsystems,
		Devices:    devices,
	})
}

func (h *OpsHandler) runChecks(ctx context.Context) ([]models.SubsystemStatus, models.HealthStatus) {
	overall := models.HealthStatusOK
	out := make([]models.SubsystemStatus, 0, len(h.checkers))
	for _, c := range h.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name(), Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
			overall = models.HealthStatusFail
		}
		out = append(out, s)
	}
	return out, overall
}

func deviceStatus(r resilience.Reachability) models.HealthStatus {
	switch r {
	case resilience.Unreachable:
		return models.HealthStatusFail
	case resilience.Probing:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

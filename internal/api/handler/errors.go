package handler

import (
	"errors"
	"net/http"

	"github.com/gatewarden/gatewarden/internal/api/models"
	"github.com/gatewarden/gatewarden/internal/api/response"
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/settings"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

// writeError maps a service error to its problem response. Vendor errors carry the device.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *device.ValidationError
	switch {
	case errors.As(err, &validation):
		response.BadRequest(w, r, "validation failed", validation.Errors)
	case errors.Is(err, device.ErrDeviceNotFound):
		response.NotFound(w, r, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		response.Conflict(w, r, "a device with this id or MAC address already exists")
	case errors.Is(err, devicesync.ErrSyncInProgress):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, devicesync.ErrNoSession):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, devicesync.ErrInvalidMode):
		response.BadRequest(w, r, "mode must be import or export", nil)
	case errors.Is(err, settings.ErrUnknownSetting), errors.Is(err, settings.ErrInvalidSettingValue):
		response.BadRequest(w, r, err.Error(), nil)
	default:
		if ref, ok := terminal.DeviceOf(err); ok {
			response.Device(w, r, deviceProblemType(err), err.Error(), models.DeviceRef{
				Name:    ref.Name,
				Address: ref.Address,
				Brand:   string(ref.Brand),
			})
			return
		}
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func deviceProblemType(err error) string {
	var ce *terminal.ConnectivityError
	var ae *terminal.AuthError
	switch {
	case errors.As(err, &ce):
		return models.ProblemTypeDeviceUnreachable
	case errors.As(err, &ae):
		return models.ProblemTypeDeviceAuth
	default:
		return models.ProblemTypeDeviceProtocol
	}
}

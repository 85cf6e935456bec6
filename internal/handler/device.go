package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/model"
	"github.com/sakif/device-manager/internal/service"
)

// maxDeviceBody caps the POST /add-new-device body.
const maxDeviceBody = 64 << 10

// DeviceHandler serves the device and cable-info routes. All of them sit
// behind RequireSession, and ownership is checked in service.DeviceService.
type DeviceHandler struct {
	devices *service.DeviceService
	logger  *slog.Logger
}

func NewDeviceHandler(devices *service.DeviceService, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, logger: logger}
}

type deviceListResponse struct {
	Body []model.Device `json:"body"`
}

type addDeviceResponse struct {
	Msg      string `json:"msg"`
	Status   string `json:"status"`
	DeviceID int64  `json:"device_id"`
}

type failureResponse struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

// HandleList returns every device the caller owns.
//
// HTTP: GET /get-all-devices/{userId}
//
// A store failure answers 404 {"error":"Data not found"}; the dashboard
// treats that as "nothing to show" and renders an empty table.
func (h *DeviceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	devices, err := h.devices.List(r.Context(), caller, chi.URLParam(r, "userId"))
	if err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			writeError(w, err)
			return
		}
		h.logger.Error("listing devices failed",
			slog.String("userID", caller),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusNotFound, failureResponse{Error: "Data not found"})
		return
	}

	writeJSON(w, http.StatusOK, deviceListResponse{Body: devices})
}

// HandleAdd registers a new device for the caller.
//
// HTTP: POST /add-new-device
// Body: {"device_name": "...", "device_url": "...", "user_id": "..."}
func (h *DeviceHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var input service.CreateDeviceInput
	r.Body = http.MaxBytesReader(w, r.Body, maxDeviceBody)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
		})
		return
	}

	device, err := h.devices.Create(r.Context(), caller, input)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrForbidden) {
			writeError(w, err)
			return
		}
		h.logger.Error("adding device failed",
			slog.String("userID", caller),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, failureResponse{
			Error:  "could not add device",
			Status: "failure",
		})
		return
	}

	writeJSON(w, http.StatusOK, addDeviceResponse{
		Msg:      "Device added successfully",
		Status:   "success",
		DeviceID: device.ID,
	})
}

// HandleDelete removes a device. Unknown ids answer 204 too.
//
// HTTP: DELETE /delete-device/{deviceId}
func (h *DeviceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	id, err := int64Param(chi.URLParam(r, "deviceId"), "deviceId")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.devices.Delete(r.Context(), caller, id); err != nil {
		if !errors.Is(err, apperror.ErrForbidden) {
			h.logger.Error("deleting device failed",
				slog.Int64("deviceID", id),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCableInfo returns the bench summary for one of the caller's devices.
//
// HTTP: GET /get-cable-info/{deviceId}
func (h *DeviceHandler) HandleCableInfo(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	id, err := int64Param(chi.URLParam(r, "deviceId"), "deviceId")
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := h.devices.CableInfo(r.Context(), caller, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, info)
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, failureResponse{Error: "Device not found"})
	case errors.Is(err, apperror.ErrForbidden):
		writeError(w, err)
	default:
		h.logger.Error("reading cable info failed",
			slog.Int64("deviceID", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
	}
}

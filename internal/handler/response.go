package handler

// Every JSON error from this API has the same shape:
//
//	{"error": "not_found", "message": "device not found with id 42"}
//
// except the device routes that keep the exact bodies the dashboard frontend
// already parses ({"error":"Data not found"} and friends, see device.go).

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/session"
)

// ErrorResponse is the standard error format returned by API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`             // machine-readable error type
	Message string `json:"message,omitempty"` // human-readable description
	Field   string `json:"field,omitempty"`   // offending input field, for validation errors
}

// writeJSON sets the header, then the status, then encodes the body.
// Headers written after the first body byte are silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already out; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status and error type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrUnverifiedIdentity),
		errors.Is(err, apperror.ErrResolutionFailed):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err to a status and writes an ErrorResponse.
//
// Only AppError messages reach the client. Store errors carry SQL and driver
// text in their cause, so 500s always get the generic message.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// callerID returns the authenticated principal's id. Routes behind
// RequireSession always have one; the check guards against mis-wiring.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := session.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return p.GetID(), true
}

// int64Param parses a positive integer path parameter.
func int64Param(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(field, field+" must be a positive integer")
	}
	return id, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/model"
	"github.com/sakif/device-manager/internal/repository"
)

// Validation limits for new devices.
const (
	MaxDeviceNameLength = 100
	MaxDeviceURLLength  = 2048
)

// DeviceService enforces ownership on every device operation.
// callerID is always the authenticated principal's id.
type DeviceService struct {
	devices repository.DeviceRepository
	logger  *slog.Logger
}

func NewDeviceService(devices repository.DeviceRepository, logger *slog.Logger) *DeviceService {
	return &DeviceService{devices: devices, logger: logger}
}

// CreateDeviceInput is the body of POST /add-new-device.
type CreateDeviceInput struct {
	Name   string `json:"device_name"`
	URL    string `json:"device_url"`
	UserID string `json:"user_id"` // optional; defaults to the caller
}

// List returns userID's devices. Callers may only list their own.
func (s *DeviceService) List(ctx context.Context, callerID, userID string) ([]model.Device, error) {
	if userID != callerID {
		return nil, apperror.Forbidden("you can only list your own devices")
	}

	devices, err := s.devices.ListDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/device: listing devices for %s: %w", userID, err)
	}
	return devices, nil
}

// Create validates input and registers a device owned by the caller.
func (s *DeviceService) Create(ctx context.Context, callerID string, input CreateDeviceInput) (*model.Device, error) {
	owner := strings.TrimSpace(input.UserID)
	if owner == "" {
		owner = callerID
	}
	if owner != callerID {
		return nil, apperror.Forbidden("you can only add devices to your own account")
	}

	if err := validateCreateDevice(&input); err != nil {
		return nil, err
	}

	device := &model.Device{UserID: owner, Name: input.Name, URL: input.URL}
	if _, err := s.devices.CreateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("service/device: creating device: %w", err)
	}

	s.logger.Info("device added",
		slog.Int64("deviceID", device.ID),
		slog.String("userID", owner),
	)
	return device, nil
}

// Delete removes a device the caller owns. Deleting an unknown id succeeds,
// so clients can retry freely.
func (s *DeviceService) Delete(ctx context.Context, callerID string, deviceID int64) error {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/device: loading device %d: %w", deviceID, err)
	}
	if device.UserID != callerID {
		return apperror.Forbidden("you can only delete your own devices")
	}

	if err := s.devices.DeleteDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("service/device: deleting device %d: %w", deviceID, err)
	}

	s.logger.Info("device deleted",
		slog.Int64("deviceID", deviceID),
		slog.String("userID", callerID),
	)
	return nil
}

// CableInfo returns the bench summary for a device the caller owns.
// An unknown device and a device with no cable rows both yield ErrNotFound.
func (s *DeviceService) CableInfo(ctx context.Context, callerID string, deviceID int64) (*model.CableInfo, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("service/device: loading device %d: %w", deviceID, err)
	}
	if device.UserID != callerID {
		return nil, apperror.Forbidden("you can only view your own devices")
	}

	info, err := s.devices.GetCableInfo(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("service/device: cable info for %d: %w", deviceID, err)
	}
	return info, nil
}

// validateCreateDevice trims and checks the input in place.
func validateCreateDevice(input *CreateDeviceInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.URL = strings.TrimSpace(input.URL)

	if input.Name == "" {
		return apperror.ValidationFailed("device_name", "device name is required")
	}
	if len(input.Name) > MaxDeviceNameLength {
		return apperror.ValidationFailed("device_name",
			fmt.Sprintf("device name must be %d characters or fewer", MaxDeviceNameLength))
	}

	if input.URL == "" {
		return apperror.ValidationFailed("device_url", "device url is required")
	}
	if len(input.URL) > MaxDeviceURLLength {
		return apperror.ValidationFailed("device_url",
			fmt.Sprintf("device url must be %d characters or fewer", MaxDeviceURLLength))
	}

	return nil
}

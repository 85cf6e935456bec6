// Package repository declares the data-access contracts the services depend on.
//
// Services accept these interfaces, never the concrete sqlstore.DB, so tests can
// substitute in-memory fakes and the SQL backend can change without touching them.
package repository

import (
	"context"

	"github.com/sakif/device-manager/internal/model"
)

// UserRepository reads and writes User rows.
//
// Error contract (see internal/apperror):
//   - UsernameExists returns (false, nil) on zero matches, ErrStoreQuery on failure
//   - CreateUser returns ErrDuplicateKey when email, external id or username is taken
//   - GetUser, GetUserByEmail and PasswordHash return ErrNotFound for missing rows
type UserRepository interface {
	UsernameExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, externalID, username, avatarURL string) error
	GetUser(ctx context.Context, externalID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	PasswordHash(ctx context.Context, username string) (string, error)
	SetPasswordHash(ctx context.Context, externalID, hash string) error
}

// DeviceRepository manages devices and their read-only cable info.
//
// ListDevices returns an empty, non-nil slice for a user with no devices.
// DeleteDevice on an unknown id is a no-op, not an error.
type DeviceRepository interface {
	ListDevices(ctx context.Context, userID string) ([]model.Device, error)
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	CreateDevice(ctx context.Context, device *model.Device) (int64, error)
	DeleteDevice(ctx context.Context, id int64) error
	GetCableInfo(ctx context.Context, deviceID int64) (*model.CableInfo, error)
}

// Store is everything the application needs from persistence.
type Store interface {
	UserRepository
	DeviceRepository
	Ping(ctx context.Context) error
}

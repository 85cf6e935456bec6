package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/model"
)

// ErrNoSession means the id in a session token no longer matches a user.
// Callers treat the request as unauthenticated.
var ErrNoSession = errors.New("session: no user for session")

// UserGetter is the slice of repository.UserRepository the loader needs.
type UserGetter interface {
	GetUser(ctx context.Context, externalID string) (*model.User, error)
}

// Loader rebuilds a Principal from the id stored in a session.
type Loader struct {
	users UserGetter
}

func NewLoader(users UserGetter) *Loader {
	return &Loader{users: users}
}

// Load fetches the user with the given external id.
// A missing user yields ErrNoSession; store failures are returned wrapped.
func (l *Loader) Load(ctx context.Context, id string) (*Principal, error) {
	if id == "" {
		return nil, ErrNoSession
	}

	u, err := l.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("session: loading user: %w", err)
	}

	return FromUser(u), nil
}

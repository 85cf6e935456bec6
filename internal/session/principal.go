// Package session turns a stored user into the principal a request acts as,
// and keeps the list of sessions that were ended early.
package session

import (
	"context"

	"github.com/sakif/device-manager/internal/model"
)

// Principal is the authenticated caller of a request.
//
// It is always built from a stored User, so its existence alone means the
// caller is authenticated. Anonymous requests simply have no Principal.
type Principal struct {
	ID        string // the user's ExternalID
	Name      string
	Email     string
	AvatarURL string
	Active    bool
}

// FromUser builds a Principal for u. Every stored user is active: there is no
// disable flag on accounts yet.
func FromUser(u *model.User) *Principal {
	return &Principal{
		ID:        u.ExternalID,
		Name:      u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Active:    true,
	}
}

// GetID returns the identifier carried in the session token.
func (p *Principal) GetID() string { return p.ID }

func (p *Principal) IsAuthenticated() bool { return true }

func (p *Principal) IsActive() bool { return p.Active }

func (p *Principal) IsAnonymous() bool { return false }

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the session
// middleware, or (nil, false) for anonymous requests.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

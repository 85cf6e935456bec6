// Package service contains the business rules that sit between the HTTP
// handlers and the store:
//
//	Handler (HTTP)  →  Service (rules, ownership)  →  repository.Store (SQL)
//
// Services accept repository interfaces, not *sqlstore.DB, so tests run
// against in-memory fakes and never need HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/auth"
	"github.com/sakif/device-manager/internal/metrics"
	"github.com/sakif/device-manager/internal/model"
	"github.com/sakif/device-manager/internal/repository"
)

// IdentityResolver maps a provider assertion to a local User, creating the
// user on first login.
type IdentityResolver struct {
	users   repository.UserRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewIdentityResolver(users repository.UserRepository, m *metrics.Metrics, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{users: users, metrics: m, logger: logger}
}

// Resolve returns the stored user for a, provisioning it when the email is new.
//
// Unverified emails are rejected before the store is touched. A concurrent
// first login for the same identity loses the INSERT race with
// ErrDuplicateKey; that is treated as "already exists" so both callers end up
// with the same row. Every other store failure becomes ErrResolutionFailed.
//
// On a repeat login the stored name and avatar are refreshed from the
// assertion. That refresh is best effort and never blocks the login.
func (r *IdentityResolver) Resolve(ctx context.Context, a *auth.Assertion) (*model.User, error) {
	if a == nil {
		return nil, apperror.ResolutionFailed(errors.New("service/auth: assertion must not be nil"))
	}
	if !a.EmailVerified || a.Email == "" {
		return nil, apperror.UnverifiedIdentity(a.Email)
	}

	exists, err := r.users.UsernameExists(ctx, a.Email)
	if err != nil {
		return nil, apperror.ResolutionFailed(fmt.Errorf("service/auth: checking %s: %w", a.Email, err))
	}

	if exists {
		r.refreshProfile(ctx, a)
	} else if err := r.provision(ctx, a); err != nil {
		return nil, err
	}

	user, err := r.users.GetUserByEmail(ctx, a.Email)
	if err != nil {
		return nil, apperror.ResolutionFailed(fmt.Errorf("service/auth: reading back %s: %w", a.Email, err))
	}

	return user, nil
}

func (r *IdentityResolver) provision(ctx context.Context, a *auth.Assertion) error {
	user := &model.User{
		ExternalID: a.Subject,
		Username:   displayName(a),
		Email:      a.Email,
		AvatarURL:  a.Picture,
	}

	err := r.users.CreateUser(ctx, user)
	switch {
	case err == nil:
		r.metrics.IncrementUsersCreated()
		r.logger.Info("user provisioned",
			slog.String("userID", user.ExternalID),
			slog.String("email", user.Email),
		)
		return nil
	case errors.Is(err, apperror.ErrDuplicateKey):
		// Lost a race with another first login, or the display name is taken.
		// The read-back in Resolve tells the two apart.
		r.logger.Debug("user already provisioned", slog.String("email", a.Email))
		return nil
	default:
		return apperror.ResolutionFailed(fmt.Errorf("service/auth: creating %s: %w", a.Email, err))
	}
}

func (r *IdentityResolver) refreshProfile(ctx context.Context, a *auth.Assertion) {
	if err := r.users.UpdateProfile(ctx, a.Subject, displayName(a), a.Picture); err != nil {
		r.logger.Warn("could not refresh user profile",
			slog.String("userID", a.Subject),
			slog.String("error", err.Error()),
		)
	}
}

// MaxUsernameLength is the width of the username column, in characters.
const MaxUsernameLength = 255

// displayName falls back to the email when Google sends no given_name.
// Usernames are unique, so an empty name would collide on the second such user.
// The result is cut to MaxUsernameLength runes.
func displayName(a *auth.Assertion) string {
	name := a.Name
	if name == "" {
		name = a.Email
	}
	if r := []rune(name); len(r) > MaxUsernameLength {
		name = string(r[:MaxUsernameLength])
	}
	return name
}

// AccountService manages the optional local password on an account.
//
// Google is the primary identity provider and most users never set a
// password. Operators who need to sign in to bench tooling without a browser
// can set one, keyed by their username.
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAccountService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *AccountService {
	return &AccountService{users: users, passwords: passwords, logger: logger}
}

// MinPasswordLength is the shortest password SetPassword accepts.
const MinPasswordLength = 12

// SetPassword hashes plaintext and stores it for the given user.
func (s *AccountService) SetPassword(ctx context.Context, externalID, plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		return apperror.ValidationFailed("password", "password is too long")
	}

	if err := s.users.SetPasswordHash(ctx, externalID, hash); err != nil {
		return fmt.Errorf("service/account: storing password for %s: %w", externalID, err)
	}

	s.logger.Info("password set", slog.String("userID", externalID))
	return nil
}

// ValidateCredentials reports whether password matches the hash stored for
// username. Unknown users, accounts without a password and wrong passwords
// all yield (false, nil), so callers cannot probe for usernames. Only store
// failures and corrupt hashes return an error.
func (s *AccountService) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	hash, err := s.users.PasswordHash(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/account: reading credentials: %w", err)
	}

	if err := s.passwords.Verify(hash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return false, nil
		}
		return false, fmt.Errorf("service/account: verifying credentials: %w", err)
	}

	return true, nil
}

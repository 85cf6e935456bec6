package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor for production hashes.
// Aim for roughly 250ms per hash on the deployment hardware.
const DefaultPasswordCost = 12

// ErrPasswordMismatch means the password does not match the stored hash.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and checks passwords with bcrypt.
//
// Accounts come from Google, so most users never have a password. This backs
// AccountService.ValidateCredentials for the few local accounts (operators,
// bench machines) that do.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService using cost, or
// DefaultPasswordCost when cost is zero. Tests pass bcrypt.MinCost.
func NewPasswordService(cost int) *PasswordService {
	if cost == 0 {
		cost = DefaultPasswordCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns a self-describing bcrypt hash ("$2a$12$<salt><hash>").
// bcrypt silently ignores bytes past 72, so longer passwords are rejected.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", errors.New("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash, ErrPasswordMismatch when it
// does not, and a wrapped error for malformed hashes. The comparison is constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}

// Package auth handles everything between the browser and a logged-in principal:
// the Google OAuth2 client, signed tokens, password hashing and the session middleware.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. GET /login redirects to Google with a random state cookie
//  2. Google calls back /login/callback?code=...&state=...
//  3. The server exchanges the code for a userinfo Assertion and resolves it
//     to a local User (service.IdentityResolver)
//  4. The server signs a session JWT and stores it in an HttpOnly cookie
//  5. The browser is redirected to the dashboard with a short-lived handoff token
//  6. Later requests carry the cookie; middleware validates it, checks the
//     revocation list and loads the session.Principal
//
// Two token kinds share one HMAC secret and are kept apart by audience:
// a session token can never be replayed as a handoff token, and vice versa.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "device-manager"

	audienceSession = "session"
	audienceHandoff = "handoff"

	// HandoffTTL is how long the dashboard has to redeem a handoff token.
	HandoffTTL = 2 * time.Minute

	// DefaultSessionTTL applies when NewTokenService gets a non-positive ttl.
	DefaultSessionTTL = 24 * time.Hour
)

// ErrTokenExpired is returned by the Validate methods for expired tokens.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies HS256 tokens.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; use something like `openssl rand -hex 32` in production.
func NewTokenService(secret string, sessionTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), sessionTTL: sessionTTL}, nil
}

// SessionTTL reports the lifetime of tokens issued by IssueSession.
func (s *TokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// SessionClaims is the session token payload. Subject is the user's external id.
// ID (the "jti") is unique per token so a single session can be revoked.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// HandoffClaims carries the profile the dashboard needs right after login.
type HandoffClaims struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
	UniqueID string `json:"unique_id"`
	jwt.RegisteredClaims
}

// IssueSession signs a session token for userID with the configured lifetime.
func (s *TokenService) IssueSession(userID string) (string, *SessionClaims, error) {
	return s.IssueSessionWithTTL(userID, s.sessionTTL)
}

// IssueSessionWithTTL signs a session token with a custom lifetime.
// Tests use negative durations to mint already-expired tokens.
func (s *TokenService) IssueSessionWithTTL(userID string, ttl time.Duration) (string, *SessionClaims, error) {
	if userID == "" {
		return "", nil, errors.New("auth: session subject must not be empty")
	}

	c := &SessionClaims{RegisteredClaims: s.registered(userID, audienceSession, ttl)}
	signed, err := s.sign(c)
	if err != nil {
		return "", nil, err
	}
	return signed, c, nil
}

// ValidateSession verifies a session token and returns its claims.
func (s *TokenService) ValidateSession(tokenStr string) (*SessionClaims, error) {
	c := &SessionClaims{}
	if err := s.parse(tokenStr, c, audienceSession); err != nil {
		return nil, err
	}
	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	return c, nil
}

// IssueHandoff signs the short-lived profile token appended to the dashboard redirect.
func (s *TokenService) IssueHandoff(uniqueID, name, email, picture string) (string, error) {
	c := &HandoffClaims{
		Name:             name,
		Email:            email,
		Picture:          picture,
		UniqueID:         uniqueID,
		RegisteredClaims: s.registered(uniqueID, audienceHandoff, HandoffTTL),
	}
	return s.sign(c)
}

// ValidateHandoff verifies a handoff token and returns the profile it carries.
func (s *TokenService) ValidateHandoff(tokenStr string) (*HandoffClaims, error) {
	c := &HandoffClaims{}
	if err := s.parse(tokenStr, c, audienceHandoff); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *TokenService) registered(subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *TokenService) sign(c jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// parse verifies signature, algorithm, issuer, audience and expiry.
// Pinning HS256 with WithValidMethods rules out "alg: none" style confusion.
func (s *TokenService) parse(tokenStr string, c jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return errors.New("auth: invalid token claims")
	}
	return nil
}

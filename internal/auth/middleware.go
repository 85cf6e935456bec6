package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/device-manager/internal/session"
)

// SessionCookie holds the signed session token.
const SessionCookie = "session"

// ErrUnauthenticated means the request carries no usable session:
// no cookie, a bad or expired token, a revoked token, or a deleted user.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// contextKey is private so no other package can read or shadow our values.
type contextKey string

const claimsKey contextKey = "sessionClaims"

// Authenticator turns a session cookie into a session.Principal.
//
// Every check runs on every request: signature and expiry, then the
// revocation list, then the user row. A user deleted from the store loses
// access immediately even though their token is still validly signed.
type Authenticator struct {
	tokens  *TokenService
	revoker session.Revoker
	loader  *session.Loader
	logger  *slog.Logger
}

func NewAuthenticator(tokens *TokenService, revoker session.Revoker, loader *session.Loader, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, revoker: revoker, loader: loader, logger: logger}
}

// Authenticate resolves the request's principal. It returns ErrUnauthenticated
// for anything the client can fix by logging in again, and a wrapped error
// when the revocation list or the store could not be consulted.
func (a *Authenticator) Authenticate(r *http.Request) (*session.Principal, *SessionClaims, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil, ErrUnauthenticated
	}

	claims, err := a.tokens.ValidateSession(cookie.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	revoked, err := a.revoker.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: checking revocation: %w", err)
	}
	if revoked {
		return nil, nil, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}

	p, err := a.loader.Load(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, nil, err
	}

	return p, claims, nil
}

// RequireSession rejects requests without a valid session with 401, and
// answers 500 when the session could not be checked at all.
func (a *Authenticator) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, claims, err := a.Authenticate(r)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			a.logger.Error("session check failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			writeAuthError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), p, claims)))
	})
}

// OptionalSession attaches the principal when there is one and otherwise
// lets the request through as anonymous. Used on the index page.
func (a *Authenticator) OptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, claims, err := a.Authenticate(r)
		switch {
		case err == nil:
			r = r.WithContext(withSession(r.Context(), p, claims))
		case !errors.Is(err, ErrUnauthenticated):
			a.logger.Warn("treating request as anonymous after session check failure",
				slog.String("error", err.Error()),
			)
		}
		next.ServeHTTP(w, r)
	})
}

func withSession(ctx context.Context, p *session.Principal, claims *SessionClaims) context.Context {
	ctx = session.WithPrincipal(ctx, p)
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the validated session token claims. Logout uses
// them to revoke the exact token the request presented.
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*SessionClaims)
	return c, ok && c != nil
}

// SetSessionCookie stores token in an HttpOnly cookie that expires with it.
// secure should be true whenever the site is served over HTTPS.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authError{Error: code, Message: message})
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/device-manager/internal/apperror"
	"github.com/sakif/device-manager/internal/auth"
	"github.com/sakif/device-manager/internal/metrics"
	"github.com/sakif/device-manager/internal/model"
	"github.com/sakif/device-manager/internal/session"
)

const stateCookie = "oauth_state"

// IdentityProvider is the OAuth half of the login flow (auth.GoogleProvider).
type IdentityProvider interface {
	AuthURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) (*auth.Assertion, error)
}

// IdentityResolver maps a provider assertion to a stored user (service.IdentityResolver).
type IdentityResolver interface {
	Resolve(ctx context.Context, a *auth.Assertion) (*model.User, error)
}

// AuthConfig carries the deployment settings the login flow needs.
type AuthConfig struct {
	DownstreamURL string // where the browser lands after a successful login
	SecureCookies bool   // set when the site is served over HTTPS
}

// AuthHandler drives the Google login flow and ends sessions.
//
//   - HandleLogin    → redirect the browser to Google's consent page
//   - HandleCallback → exchange the code, resolve the user, start a session
//   - HandleLogout   → revoke the session token and clear the cookie
type AuthHandler struct {
	provider   IdentityProvider
	resolver   IdentityResolver
	tokens     *auth.TokenService
	revoker    session.Revoker
	metrics    *metrics.Metrics
	downstream *url.URL
	secure     bool
	logger     *slog.Logger
}

func NewAuthHandler(
	provider IdentityProvider,
	resolver IdentityResolver,
	tokens *auth.TokenService,
	revoker session.Revoker,
	m *metrics.Metrics,
	cfg AuthConfig,
	logger *slog.Logger,
) (*AuthHandler, error) {
	downstream, err := url.Parse(cfg.DownstreamURL)
	if err != nil || downstream.Scheme == "" || downstream.Host == "" {
		return nil, fmt.Errorf("handler: downstream URL %q must be absolute", cfg.DownstreamURL)
	}

	return &AuthHandler{
		provider:   provider,
		resolver:   resolver,
		tokens:     tokens,
		revoker:    revoker,
		metrics:    m,
		downstream: downstream,
		secure:     cfg.SecureCookies,
		logger:     logger,
	}, nil
}

// HandleLogin redirects the user to Google's authorization page.
//
// HTTP: GET /login
//
// A random state goes into a 10-minute HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match, which
// proves the flow was started by this browser on this site (CSRF).
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	authURL, err := h.provider.AuthURL(r.Context(), state)
	if err != nil {
		h.logger.Error("login: building authorization URL failed", slog.String("error", err.Error()))
		http.Error(w, "login is temporarily unavailable", http.StatusBadGateway)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleCallback completes the login.
//
// HTTP: GET /login/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state against the cookie (CSRF)
//  2. Stop if Google reported an error (user denied consent)
//  3. Exchange the code for the user's Google profile
//  4. Resolve the profile to a stored user, provisioning it on first login
//  5. Start a session: signed token in an HttpOnly cookie
//  6. Redirect to the dashboard with a short-lived handoff token
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("login callback: state mismatch", slog.Bool("cookiePresent", err == nil))
		h.metrics.ObserveLogin(metrics.LoginStateMismatch)
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	// --- Step 2: provider error ---
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("login callback: provider returned an error", slog.String("error", errParam))
		h.metrics.ObserveLogin(metrics.LoginProviderDenied)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.metrics.ObserveLogin(metrics.LoginMissingCode)
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	// --- Step 3: code → profile ---
	assertion, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("login callback: code exchange failed", slog.String("error", err.Error()))
		h.metrics.ObserveLogin(metrics.LoginExchangeFailed)
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 4: profile → user ---
	user, err := h.resolver.Resolve(r.Context(), assertion)
	if err != nil {
		if errors.Is(err, apperror.ErrUnverifiedIdentity) {
			h.logger.Info("login callback: email not verified", slog.String("subject", assertion.Subject))
			h.metrics.ObserveLogin(metrics.LoginUnverified)
			http.Error(w, "User email not available or not verified by Google.", http.StatusBadRequest)
			return
		}
		h.logger.Error("login callback: resolving user failed",
			slog.String("subject", assertion.Subject),
			slog.String("error", err.Error()),
		)
		h.metrics.ObserveLogin(metrics.LoginFailed)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	// --- Step 5: session ---
	token, claims, err := h.tokens.IssueSession(user.ExternalID)
	if err != nil {
		h.logger.Error("login callback: issuing session failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	handoff, err := h.tokens.IssueHandoff(user.ExternalID, user.Username, user.Email, user.AvatarURL)
	if err != nil {
		h.logger.Error("login callback: issuing handoff failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	auth.SetSessionCookie(w, token, claims.ExpiresAt.Time, h.secure)

	h.logger.Info("user logged in", slog.String("userID", user.ExternalID))
	h.metrics.ObserveLogin(metrics.LoginSuccess)

	// --- Step 6: back to the dashboard ---
	http.Redirect(w, r, h.downstreamWith(handoff), http.StatusSeeOther)
}

// downstreamWith appends the handoff token to the dashboard URL, keeping any
// query parameters the URL already has.
func (h *AuthHandler) downstreamWith(token string) string {
	u := *h.downstream
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// HandleLogout ends the current session.
//
// HTTP: GET /logout
// Auth: Required
//
// Deleting the cookie is not enough on its own: a copied token would stay
// valid until it expires. Its jti goes on the revocation list for exactly
// the token's remaining lifetime.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if err := h.revoker.Revoke(r.Context(), claims.ID, ttl); err != nil {
			h.logger.Error("logout: revoking session failed",
				slog.String("userID", claims.Subject),
				slog.String("error", err.Error()),
			)
		} else {
			h.logger.Info("user logged out", slog.String("userID", claims.Subject))
		}
	}

	auth.ClearSessionCookie(w, h.secure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Package authtest provides a fake Google identity provider for tests.
//
// The fake serves the discovery document, the token endpoint and the
// userinfo endpoint from one httptest.Server, so the real GoogleProvider
// can run the whole Authorization Code flow without network access.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sakif/device-manager/internal/auth"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	ValidCode    = "validcode"
	AccessToken  = "stub-access-token"
)

// Google is a running fake provider.
type Google struct {
	Server *httptest.Server

	discoveryHits atomic.Int32
	tokenHits     atomic.Int32

	mu       sync.Mutex
	userinfo auth.Assertion
}

// NewGoogle starts a fake provider that answers ValidCode with a verified
// identity (sub "123", email "u@x.com"). It is closed when the test ends.
func NewGoogle(t testing.TB) *Google {
	t.Helper()

	g := &Google{
		userinfo: auth.Assertion{
			Subject:       "123",
			Email:         "u@x.com",
			EmailVerified: true,
			Name:          "U",
			Picture:       "http://pic",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", g.serveDiscovery)
	mux.HandleFunc("POST /token", g.serveToken)
	mux.HandleFunc("GET /userinfo", g.serveUserinfo)

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Server.Close)
	return g
}

// DiscoveryURL is the value for GOOGLE_DISCOVERY_URL.
func (g *Google) DiscoveryURL() string {
	return g.Server.URL + "/.well-known/openid-configuration"
}

// AuthorizationEndpoint is where AuthURL should point the browser.
func (g *Google) AuthorizationEndpoint() string {
	return g.Server.URL + "/auth"
}

// SetUserinfo replaces the identity returned for the next logins.
func (g *Google) SetUserinfo(a auth.Assertion) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userinfo = a
}

// DiscoveryHits counts fetches of the discovery document.
func (g *Google) DiscoveryHits() int { return int(g.discoveryHits.Load()) }

// TokenHits counts calls to the token endpoint.
func (g *Google) TokenHits() int { return int(g.tokenHits.Load()) }

func (g *Google) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	g.discoveryHits.Add(1)
	writeJSON(w, http.StatusOK, auth.ProviderMetadata{
		AuthorizationEndpoint: g.AuthorizationEndpoint(),
		TokenEndpoint:         g.Server.URL + "/token",
		UserinfoEndpoint:      g.Server.URL + "/userinfo",
	})
}

// serveToken insists on HTTP Basic client credentials, as Google does for
// confidential clients, and only accepts ValidCode.
func (g *Google) serveToken(w http.ResponseWriter, r *http.Request) {
	g.tokenHits.Add(1)

	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if r.PostForm.Get("code") != ValidCode {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": AccessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (g *Google) serveUserinfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+AccessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	g.mu.Lock()
	info := g.userinfo
	g.mu.Unlock()

	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

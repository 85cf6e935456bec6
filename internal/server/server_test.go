package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/device-manager/internal/auth"
	"github.com/sakif/device-manager/internal/auth/authtest"
	"github.com/sakif/device-manager/internal/config"
)

const (
	testSecret     = "0123456789abcdef0123456789abcdef"
	testDownstream = "https://localhost:4200/dashboard"
)

// =========================================================================
// HELPERS
// =========================================================================

func testConfig(g *authtest.Google) config.Config {
	return config.Config{
		Store: config.Store{
			DatabaseDriver: "sqlite",
			DatabaseURL:    ":memory:",
			StoreTimeout:   5 * time.Second,
		},
		Port:               8080,
		GoogleClientID:     authtest.ClientID,
		GoogleClientSecret: authtest.ClientSecret,
		GoogleDiscoveryURL: g.DiscoveryURL(),
		PublicURL:          "http://localhost:8080",
		DownstreamURL:      testDownstream,
		SecretKey:          testSecret,
		SessionTTL:         time.Hour,
		ProviderTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

func newTestServer(t *testing.T) (*Server, *authtest.Google) {
	t.Helper()
	g := authtest.NewGoogle(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(context.Background(), testConfig(g), logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, g
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// login runs /login then /login/callback and returns the callback response.
func login(t *testing.T, srv *Server) *httptest.ResponseRecorder {
	t.Helper()

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	state := findCookie(rec, "oauth_state")
	require.NotNil(t, state, "login must set the state cookie")

	req := httptest.NewRequest(http.MethodGet,
		"/login/callback?code="+authtest.ValidCode+"&state="+url.QueryEscape(state.Value), nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state.Value})
	return serve(srv, req)
}

// loginSession logs in and returns the session cookie.
func loginSession(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()
	rec := login(t, srv)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	c := findCookie(rec, auth.SessionCookie)
	require.NotNil(t, c, "callback must set the session cookie")
	return c
}

func authed(method, target, body string, c *http.Cookie) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c != nil {
		req.AddCookie(c)
	}
	return req
}

// =========================================================================
// LOGIN FLOW
// =========================================================================

func TestLogin_RedirectsToGoogle(t *testing.T) {
	srv, g := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), g.AuthorizationEndpoint()), loc.String())
	assert.Equal(t, authtest.ClientID, loc.Query().Get("client_id"))
	assert.Equal(t, "http://localhost:8080/login/callback", loc.Query().Get("redirect_uri"))

	state := findCookie(rec, "oauth_state")
	require.NotNil(t, state)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.True(t, state.HttpOnly)
}

func TestCallback_FirstLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	rec := login(t, srv)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	// browser goes back to the dashboard with a handoff token
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, testDownstream, loc.Scheme+"://"+loc.Host+loc.Path)

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	handoff, err := tokens.ValidateHandoff(loc.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "123", handoff.UniqueID)
	assert.Equal(t, "u@x.com", handoff.Email)
	assert.Equal(t, "U", handoff.Name)
	assert.Equal(t, "http://pic", handoff.Picture)

	// the session cookie names the Google subject
	c := findCookie(rec, auth.SessionCookie)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	claims, err := tokens.ValidateSession(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "123", claims.Subject)

	// the user was provisioned
	exists, err := srv.db.UsernameExists(ctx, "u@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
	user, err := srv.db.GetUser(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, "U", user.Username)
}

func TestCallback_RepeatLoginKeepsOneUser(t *testing.T) {
	srv, g := newTestServer(t)

	loginSession(t, srv)
	g.SetUserinfo(auth.Assertion{
		Subject: "123", Email: "u@x.com", EmailVerified: true, Name: "Renamed", Picture: "http://pic2",
	})
	loginSession(t, srv)

	user, err := srv.db.GetUserByEmail(context.Background(), "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, "123", user.ExternalID)
	assert.Equal(t, "Renamed", user.Username)
	assert.Equal(t, "http://pic2", user.AvatarURL)
}

func TestCallback_UnverifiedEmail(t *testing.T) {
	srv, g := newTestServer(t)
	g.SetUserinfo(auth.Assertion{Subject: "456", Email: "v@x.com", EmailVerified: false, Name: "V"})

	rec := login(t, srv)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User email not available or not verified by Google.")
	assert.Nil(t, findCookie(rec, auth.SessionCookie))

	exists, err := srv.db.UsernameExists(context.Background(), "v@x.com")
	require.NoError(t, err)
	assert.False(t, exists, "unverified identities must not be provisioned")
}

func TestCallback_Rejects(t *testing.T) {
	srv, g := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		cookie string
		want   int
	}{
		{"state mismatch", "code=validcode&state=b", "a", http.StatusBadRequest},
		{"no state cookie", "code=validcode&state=a", "", http.StatusBadRequest},
		{"provider error", "error=access_denied&state=a", "a", http.StatusBadRequest},
		{"missing code", "state=a", "a", http.StatusBadRequest},
		{"bad code", "code=nope&state=a", "a", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/login/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			rec := serve(srv, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Nil(t, findCookie(rec, auth.SessionCookie))
		})
	}

	assert.Equal(t, 1, g.TokenHits(), "only the bad code should reach the token endpoint")
}

// =========================================================================
// SESSION ROUTES
// =========================================================================

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/login"`)

	c := loginSession(t, srv)
	rec = serve(srv, authed(http.MethodGet, "/", "", c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello, U!")
	assert.Contains(t, rec.Body.String(), "u@x.com")
}

func TestDeviceLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loginSession(t, srv)

	// add
	rec := serve(srv, authed(http.MethodPost, "/add-new-device",
		`{"device_name":"bench-1","device_url":"10.0.0.7:8080"}`, c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var added struct {
		Msg      string `json:"msg"`
		Status   string `json:"status"`
		DeviceID int64  `json:"device_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	assert.Equal(t, "success", added.Status)
	require.Positive(t, added.DeviceID)
	id := strconv.FormatInt(added.DeviceID, 10)

	// list
	rec = serve(srv, authed(http.MethodGet, "/get-all-devices/123", "", c))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Body []struct {
			ID     int64  `json:"device_id"`
			UserID string `json:"user_id"`
			Name   string `json:"device_name"`
			URL    string `json:"device_url"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Body, 1)
	assert.Equal(t, added.DeviceID, listed.Body[0].ID)
	assert.Equal(t, "123", listed.Body[0].UserID)
	assert.Equal(t, "10.0.0.7:8080", listed.Body[0].URL)

	// someone else's list
	rec = serve(srv, authed(http.MethodGet, "/get-all-devices/999", "", c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// no bench data yet
	rec = serve(srv, authed(http.MethodGet, "/get-cable-info/"+id, "", c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Device not found"}`, rec.Body.String())

	// delete, twice
	rec = serve(srv, authed(http.MethodDelete, "/delete-device/"+id, "", c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(srv, authed(http.MethodDelete, "/delete-device/"+id, "", c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, authed(http.MethodGet, "/get-all-devices/123", "", c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"body":[]}`, rec.Body.String())
}

func TestAddDevice_Validation(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loginSession(t, srv)

	rec := serve(srv, authed(http.MethodPost, "/add-new-device", `{"device_name":"   ","device_url":"x"}`, c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"device_name"`)

	rec = serve(srv, authed(http.MethodPost, "/add-new-device", `not json`, c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionRoutes_RequireSession(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/logout"},
		{http.MethodGet, "/get-all-devices/123"},
		{http.MethodPost, "/add-new-device"},
		{http.MethodDelete, "/delete-device/1"},
		{http.MethodGet, "/get-cable-info/1"},
	} {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			rec := serve(srv, authed(r.method, r.path, "", nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	rec := serve(srv, authed(http.MethodGet, "/get-all-devices/123", "",
		&http.Cookie{Name: auth.SessionCookie, Value: "garbage"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	srv, _ := newTestServer(t)
	c := loginSession(t, srv)

	rec := serve(srv, authed(http.MethodGet, "/logout", "", c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cleared := findCookie(rec, auth.SessionCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	// a copy of the old cookie no longer works
	rec = serve(srv, authed(http.MethodGet, "/get-all-devices/123", "", c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =========================================================================
// OPERATIONS
// =========================================================================

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	loginSession(t, srv)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "devicemgr_users_created_total 1")
	assert.Contains(t, body, `devicemgr_logins_total{outcome="success"} 1`)
	assert.Contains(t, body, `route="/login/callback"`)
}

func TestRecoveredPanicIsCounted(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("handler blew up")
	})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`devicemgr_http_requests_total{code="500",method="GET",route="/boom"} 1`)
}

func TestNew_Failures(t *testing.T) {
	g := authtest.NewGoogle(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("unsupported driver", func(t *testing.T) {
		cfg := testConfig(g)
		cfg.DatabaseDriver = "mysql"
		_, err := New(context.Background(), cfg, logger)
		assert.Error(t, err)
	})

	t.Run("bad redis url", func(t *testing.T) {
		cfg := testConfig(g)
		cfg.RedisURL = "not-a-redis-url"
		_, err := New(context.Background(), cfg, logger)
		assert.ErrorContains(t, err, "REDIS_URL")
	})

	t.Run("relative downstream", func(t *testing.T) {
		cfg := testConfig(g)
		cfg.DownstreamURL = "/dashboard"
		_, err := New(context.Background(), cfg, logger)
		assert.Error(t, err)
	})
}

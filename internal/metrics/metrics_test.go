package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IndependentRegistries(t *testing.T) {
	// two instances in one process must not collide
	a := New()
	b := New()

	a.IncrementUsersCreated()
	if got := testutil.ToFloat64(a.UsersCreated); got != 1 {
		t.Errorf("a.UsersCreated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.UsersCreated); got != 0 {
		t.Errorf("b.UsersCreated = %v, want 0", got)
	}
}

func TestObserveLogin(t *testing.T) {
	m := New()
	m.ObserveLogin(LoginSuccess)
	m.ObserveLogin(LoginSuccess)
	m.ObserveLogin(LoginUnverified)

	if got := testutil.ToFloat64(m.Logins.WithLabelValues(LoginSuccess)); got != 2 {
		t.Errorf("success logins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Logins.WithLabelValues(LoginUnverified)); got != 1 {
		t.Errorf("unverified logins = %v, want 1", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.IncrementUsersCreated()
	m.ObserveRequest("/get-all-devices/{userId}", http.MethodGet, http.StatusOK, 12*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"devicemgr_users_created_total 1",
		`devicemgr_http_requests_total{code="200",method="GET",route="/get-all-devices/{userId}"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

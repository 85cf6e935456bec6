// Package metrics owns the Prometheus registry and every collector the
// service exports on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes, the values of the "outcome" label on devicemgr_logins_total.
const (
	LoginSuccess        = "success"
	LoginStateMismatch  = "state_mismatch"
	LoginProviderDenied = "provider_denied"
	LoginMissingCode    = "missing_code"
	LoginExchangeFailed = "exchange_failed"
	LoginUnverified     = "unverified"
	LoginFailed         = "resolution_failed"
)

// Metrics holds all Prometheus metrics for the application.
//
// Each Metrics has its own registry instead of the global default, so tests
// can build as many as they like without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	UsersCreated    prometheus.Counter
	Logins          *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDurationSec *prometheus.HistogramVec
}

// New creates and registers all metrics, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "devicemgr_users_created_total",
			Help: "Total number of users provisioned on first login",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devicemgr_logins_total",
			Help: "Login callbacks by outcome",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devicemgr_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDurationSec: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devicemgr_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// IncrementUsersCreated increments the users created counter by 1.
func (m *Metrics) IncrementUsersCreated() {
	m.UsersCreated.Inc()
}

// ObserveLogin counts one finished login callback.
func (m *Metrics) ObserveLogin(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request. route is the chi pattern
// ("/delete-device/{deviceId}"), never the raw path, to keep cardinality bounded.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDurationSec.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests that gather from it.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

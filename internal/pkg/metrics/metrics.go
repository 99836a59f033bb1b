// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors shared by both binaries. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	signInsTotal    *prometheus.CounterVec
	signUpsTotal    *prometheus.CounterVec
	realtimeClients prometheus.Gauge
	profileChanges  prometheus.Counter
	guardDecisions  *prometheus.CounterVec
}

// New registers the collectors under namespace on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		signInsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Password sign-ins by outcome",
		}, []string{"outcome"}),

		signUpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ups_total",
			Help:      "Sign-ups by outcome",
		}, []string{"outcome"}),

		realtimeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_clients",
			Help:      "Connected realtime clients",
		}),

		profileChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_changes_published_total",
			Help:      "Profile change events pushed to realtime clients",
		}),

		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Access guard decisions by outcome",
		}, []string{"decision"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) SignIn(outcome string) {
	if m == nil {
		return
	}
	m.signInsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SignUp(outcome string) {
	if m == nil {
		return
	}
	m.signUpsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RealtimeConnected() {
	if m == nil {
		return
	}
	m.realtimeClients.Inc()
}

func (m *Metrics) RealtimeDisconnected() {
	if m == nil {
		return
	}
	m.realtimeClients.Dec()
}

func (m *Metrics) ProfileChangePublished() {
	if m == nil {
		return
	}
	m.profileChanges.Inc()
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(decision).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

// Metrics owns the process registry. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	sideEffects     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	pages           *prometheus.CounterVec
	otpChecks       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Workflow actions by request kind, action and outcome",
		}, []string{"kind", "action", "outcome"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_side_effect_failures_total",
			Help: "Absorbed post-commit failures by channel",
		}, []string{"channel"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_persisted_total",
			Help: "Inbox notifications written by template",
		}, []string{"template"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_pages_total",
			Help: "SMS pages by delivery outcome",
		}, []string{"outcome"}),
		otpChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "One-time code verifications by outcome",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.requestTotal,
		m.transitions,
		m.sideEffects,
		m.notifications,
		m.pages,
		m.otpChecks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) TransitionObserved(kind approval.Kind, action approval.Action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(kind), string(action), outcome).Inc()
}

func (m *Metrics) SideEffectFailed(channel string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationPersisted(template string, count int) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(template).Add(float64(count))
}

func (m *Metrics) PageDelivered(outcome string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OTPVerification(outcome string) {
	if m == nil {
		return
	}
	m.otpChecks.WithLabelValues(outcome).Inc()
}

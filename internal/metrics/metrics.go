// Package metrics owns the Prometheus collectors exposed at /metrics.
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

// Metrics holds every collector. A private registry keeps repeated
// construction in tests from panicking on duplicate registration.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	suspiciousRequests prometheus.Counter
	rateLimited        *prometheus.CounterVec
	reconcileRuns      *prometheus.CounterVec
	reconciledBills    *prometheus.CounterVec
	reconcileDuration  prometheus.Histogram
	remindersSent      *prometheus.CounterVec
	reminderPublishes  *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	iconUploads        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payrecord_http_request_duration_seconds",
			Help:    "HTTP request latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		suspiciousRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "payrecord_suspicious_requests_total",
			Help: "Requests flagged by the security detector.",
		}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_rate_limited_total",
			Help: "Requests rejected by a rate limiter.",
		}, []string{"limiter"}),
		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_reconcile_runs_total",
			Help: "Clone runs by outcome.",
		}, []string{"outcome"}),
		reconciledBills: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_reconciled_bills_total",
			Help: "Bills cloned, deleted or skipped by the reconciler.",
		}, []string{"result"}),
		reconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payrecord_reconcile_duration_seconds",
			Help:    "Duration of clone runs.",
			Buckets: prometheus.DefBuckets,
		}),
		remindersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_reminders_total",
			Help: "Reminder digests by outcome.",
		}, []string{"outcome"}),
		reminderPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_reminder_publishes_total",
			Help: "Reminder jobs published to the broker by outcome.",
		}, []string{"outcome"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_cache_lookups_total",
			Help: "Cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		iconUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payrecord_icon_uploads_total",
			Help: "Icon uploads by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) IncSuspicious() {
	m.suspiciousRequests.Inc()
}

func (m *Metrics) IncRateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

// ObserveReconcile records one clone run. outcome is "applied", "noop" or "error".
func (m *Metrics) ObserveReconcile(outcome string, cloned, deleted, skipped int, d time.Duration) {
	m.reconcileRuns.WithLabelValues(outcome).Inc()
	m.reconciledBills.WithLabelValues("cloned").Add(float64(cloned))
	m.reconciledBills.WithLabelValues("deleted").Add(float64(deleted))
	m.reconciledBills.WithLabelValues("skipped").Add(float64(skipped))
	m.reconcileDuration.Observe(d.Seconds())
}

// IncReminder counts a digest. outcome is "sent", "empty", "skipped" or "error".
func (m *Metrics) IncReminder(outcome string) {
	m.remindersSent.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReminderPublish(outcome string) {
	m.reminderPublishes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCacheHit(cache string) {
	m.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (m *Metrics) IncCacheMiss(cache string) {
	m.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

func (m *Metrics) IncIconUpload(outcome string) {
	m.iconUploads.WithLabelValues(outcome).Inc()
}

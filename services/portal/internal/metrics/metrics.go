package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loanportal"

// Metrics holds the portal collectors on a private registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight    prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	urlAttempts     *prometheus.CounterVec
	sideEffectFails *prometheus.CounterVec
	cleanupJobs     *prometheus.CounterVec
	reminders       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Document uploads by result.",
		}, []string{"result"}),
		urlAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "signed_url_attempts_total",
			Help:      "Signed URL attempts by result.",
		}, []string{"result"}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed.",
		}, []string{"kind"}),
		cleanupJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "jobs_total",
			Help:      "Blob cleanup jobs by result.",
		}, []string{"result"}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "reminders_sent_total",
			Help:      "Appointment reminders delivered.",
		}),
	}
	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.uploads,
		m.urlAttempts,
		m.sideEffectFails,
		m.cleanupJobs,
		m.reminders,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps next with HTTP metrics. route maps a request to a low
// cardinality label.
func (m *Metrics) Instrument(route func(*http.Request) string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		label := route(r)
		if label == "" {
			label = "unmatched"
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, label, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, label).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Upload(result string) {
	if m != nil {
		m.uploads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SignedURLAttempt(result string) {
	if m != nil {
		m.urlAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SideEffectFailed(kind string) {
	if m != nil {
		m.sideEffectFails.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CleanupJob(result string) {
	if m != nil {
		m.cleanupJobs.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ReminderSent() {
	if m != nil {
		m.reminders.Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/account-service/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	authEvents      *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	tokensRevoked   prometheus.Counter
	revocationPurge prometheus.Counter
	hashDuration    *prometheus.HistogramVec
	hashQueueWait   prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Authentication events by outcome",
	}, []string{"event", "outcome"})

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Signed tokens issued by type",
	}, []string{"type"})

	tokensRevoked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_revoked_total",
		Help: "Refresh tokens added to the revocation set",
	})

	revocationPurge := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocations_purged_total",
		Help: "Expired revocation entries removed by the sweeper",
	})

	hashDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "password_hash_duration_seconds",
		Help:    "Time spent hashing or verifying passwords",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	hashQueueWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "password_hash_queue_wait_seconds",
		Help:    "Time password jobs waited for a worker",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, authEvents, tokensIssued, tokensRevoked, revocationPurge, hashDuration, hashQueueWait, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		authEvents:      authEvents,
		tokensIssued:    tokensIssued,
		tokensRevoked:   tokensRevoked,
		revocationPurge: revocationPurge,
		hashDuration:    hashDuration,
		hashQueueWait:   hashQueueWait,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAuthEvent counts an authentication event.
func (m *MetricsService) RecordAuthEvent(event models.AuthEvent, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(string(event), outcome).Inc()
}

// RecordTokenIssued counts a signed token.
func (m *MetricsService) RecordTokenIssued(tokenType models.TokenType) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(string(tokenType)).Inc()
}

// RecordRevocation counts a newly revoked refresh token.
func (m *MetricsService) RecordRevocation() {
	if m == nil {
		return
	}
	m.tokensRevoked.Inc()
}

// RecordPurge counts revocation entries removed by the sweeper.
func (m *MetricsService) RecordPurge(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocationPurge.Add(float64(n))
}

// ObserveHashJob records queue wait and run time of a password job.
func (m *MetricsService) ObserveHashJob(op string, wait, run time.Duration) {
	if m == nil {
		return
	}
	m.hashQueueWait.Observe(wait.Seconds())
	m.hashDuration.WithLabelValues(op).Observe(run.Seconds())
}

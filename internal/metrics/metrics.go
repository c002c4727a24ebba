package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation paths.
const (
	PathLazy  = "lazy"
	PathSweep = "sweep"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsExpired   *prometheus.CounterVec
	attemptsAbandoned *prometheus.CounterVec
	sweepRuns         *prometheus.CounterVec
	sweepDuration     *prometheus.HistogramVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_sessions_expired_total",
				Help: "Quiz sessions moved from ACTIVE to EXPIRED",
			},
			[]string{"path"},
		),
		attemptsAbandoned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_attempts_abandoned_total",
				Help: "Quiz attempts moved from IN_PROGRESS to ABANDONED",
			},
			[]string{"path"},
		),
		sweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_sweep_runs_total",
				Help: "Reconciliation sweep passes by outcome",
			},
			[]string{"sweep", "outcome"},
		),
		sweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_sweep_duration_seconds",
				Help:    "Duration of reconciliation sweep passes",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"sweep"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
	}
	reg.MustRegister(
		m.sessionsExpired,
		m.attemptsAbandoned,
		m.sweepRuns,
		m.sweepDuration,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) SessionExpired(path string) {
	if m == nil {
		return
	}
	m.sessionsExpired.WithLabelValues(path).Inc()
}

func (m *Metrics) AttemptAbandoned(path string) {
	if m == nil {
		return
	}
	m.attemptsAbandoned.WithLabelValues(path).Inc()
}

// ObserveSweep records one sweep pass.
func (m *Metrics) ObserveSweep(sweep, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(sweep, outcome).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(took.Seconds())
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

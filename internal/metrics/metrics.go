package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the client's Prometheus collectors. A nil *Registry is
// valid and records nothing, so components can run without metrics.
type Registry struct {
	reg *prometheus.Registry

	// HTTP pipeline metrics
	RequestDuration *prometheus.HistogramVec
	Unauthorized    *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	// Polling metrics
	PollDuration   *prometheus.HistogramVec
	StaleDiscarded *prometheus.CounterVec

	// Badge state, 1 when the badge is lit
	Badges *prometheus.GaugeVec
}

// New creates a registry with every recach collector registered
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recach_api_request_duration_seconds",
				Help:    "Duration of API requests by scope and status",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"scope", "method", "status"},
		),

		Unauthorized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recach_api_unauthorized_total",
				Help: "401 responses that ended a session",
			},
			[]string{"scope"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "recach_api_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"scope"},
		),

		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recach_poll_duration_seconds",
				Help:    "Duration of resource loads",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"resource", "result"},
		),

		StaleDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recach_poll_stale_discarded_total",
				Help: "Responses discarded because a newer load already applied",
			},
			[]string{"resource"},
		),

		Badges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "recach_badge_lit",
				Help: "Notification badge state",
			},
			[]string{"badge"},
		),
	}

	r.reg.MustRegister(
		r.RequestDuration,
		r.Unauthorized,
		r.BreakerState,
		r.PollDuration,
		r.StaleDiscarded,
		r.Badges,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveRequest records one API round trip. Status 0 means a transport error.
func (r *Registry) ObserveRequest(scope, method string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.RequestDuration.WithLabelValues(scope, method, label).Observe(elapsed.Seconds())
}

// CountUnauthorized records a session ended by a 401
func (r *Registry) CountUnauthorized(scope string) {
	if r == nil {
		return
	}
	r.Unauthorized.WithLabelValues(scope).Inc()
}

// SetBreakerState records a breaker transition
func (r *Registry) SetBreakerState(scope string, state int) {
	if r == nil {
		return
	}
	r.BreakerState.WithLabelValues(scope).Set(float64(state))
}

// ObservePoll records one resource load
func (r *Registry) ObservePoll(resource string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.PollDuration.WithLabelValues(resource, result).Observe(elapsed.Seconds())
}

// CountStale records a discarded out-of-order response
func (r *Registry) CountStale(resource string) {
	if r == nil {
		return
	}
	r.StaleDiscarded.WithLabelValues(resource).Inc()
}

// SetBadge records a badge state
func (r *Registry) SetBadge(badge string, lit bool) {
	if r == nil {
		return
	}
	v := 0.0
	if lit {
		v = 1
	}
	r.Badges.WithLabelValues(badge).Set(v)
}

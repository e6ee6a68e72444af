// Package metrics owns the Prometheus registry for WebCAF.
//
// The registry is private to the process (not the global default) and is
// served on its own listener, away from the public routes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webcaf"

// Collector holds every metric the application records.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	LoginAttempts         *prometheus.CounterVec
	TwoFactorAttempts     *prometheus.CounterVec
	RateLimited           *prometheus.CounterVec
	AssessmentTransitions *prometheus.CounterVec
	JobsProcessed         *prometheus.CounterVec
}

// NewCollector creates a collector with process and Go runtime collectors
// already registered.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status_code"})

	c.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})

	c.LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Sign-in attempts by method and result.",
	}, []string{"method", "result"})

	c.TwoFactorAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_attempts_total",
		Help:      "Passcode sends and verifications by result.",
	}, []string{"result"})

	c.RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_requests_total",
		Help:      "Requests refused by a rate limiter.",
	}, []string{"limiter"})

	c.AssessmentTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assessment_transitions_total",
		Help:      "Assessment status changes by target status.",
	}, []string{"status"})

	c.JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Background jobs processed by kind and result.",
	}, []string{"kind", "result"})

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.RequestsTotal,
		c.RequestDuration,
		c.LoginAttempts,
		c.TwoFactorAttempts,
		c.RateLimited,
		c.AssessmentTransitions,
		c.JobsProcessed,
	)
	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterGaugeFunc adds a gauge whose value is read on every scrape.
func (c *Collector) RegisterGaugeFunc(name, help string, labels prometheus.Labels, fn func() float64) error {
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn))
}

// ObserveRequest records one completed HTTP request.
func (c *Collector) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, status).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Login records a sign-in attempt. method is "oidc" or "local".
func (c *Collector) Login(method string, ok bool) {
	if c == nil {
		return
	}
	c.LoginAttempts.WithLabelValues(method, result(ok)).Inc()
}

// TwoFactor records a passcode event: sent, success, failure or locked.
func (c *Collector) TwoFactor(outcome string) {
	if c == nil {
		return
	}
	c.TwoFactorAttempts.WithLabelValues(outcome).Inc()
}

// Throttled records a request refused by the named limiter.
func (c *Collector) Throttled(limiter string) {
	if c == nil {
		return
	}
	c.RateLimited.WithLabelValues(limiter).Inc()
}

// Transition records an assessment entering status.
func (c *Collector) Transition(status string) {
	if c == nil {
		return
	}
	c.AssessmentTransitions.WithLabelValues(status).Inc()
}

// Job records one River job outcome.
func (c *Collector) Job(kind string, err error) {
	if c == nil {
		return
	}
	c.JobsProcessed.WithLabelValues(kind, result(err == nil)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

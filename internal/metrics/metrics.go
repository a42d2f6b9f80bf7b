package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlanCycles counts planning cycles by outcome source (anneal, baseline, error).
	PlanCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_cycles_total", Help: "Planning cycles by final route-set source."},
		[]string{"source"},
	)
	// PlanDuration tracks full planning-cycle latency.
	PlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_cycle_duration_seconds", Help: "Planning cycle duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}},
	)
	// SamplerDuration tracks the annealing path latency including fallback.
	SamplerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "sampler_solve_duration_seconds", Help: "Annealing router solve duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}},
	)
	// DegradedCycles counts cycles that fell back to the baseline router.
	DegradedCycles = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "plan_degraded_cycles_total", Help: "Cycles that fell back to the baseline router."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanCycles)
		Registry.MustRegister(PlanDuration)
		Registry.MustRegister(SamplerDuration)
		Registry.MustRegister(DegradedCycles)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

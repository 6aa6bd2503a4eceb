// Package metrics exposes the orchestrator's Prometheus surface:
// per-provider request/latency/token/cost counters plus circuit
// breaker and health gauges, registered once at startup and updated
// from the health and cost trackers and the orchestration strategies.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector wraps the Prometheus vectors the orchestrator updates on
// every provider call and health-state transition.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec
	cost            *prometheus.CounterVec

	circuitState      *prometheus.GaugeVec
	providerHealthy   *prometheus.GaugeVec
	consecutiveErrors *prometheus.GaugeVec
}

// NewCollector registers the orchestrator's metrics under namespace
// (e.g. "orchestrator") and returns a Collector ready to record
// against them.
func NewCollector(namespace string) *Collector {
	return &Collector{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of provider extraction requests.",
			},
			[]string{"provider", "model", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Provider extraction request duration in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		tokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_used_total",
				Help:      "Total tokens consumed per provider and direction.",
			},
			[]string{"provider", "model", "direction"}, // direction: input, output
		),
		cost: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_cost_usd_total",
				Help:      "Total estimated cost in USD per provider.",
			},
			[]string{"provider", "model"},
		),
		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per provider: 0=closed, 1=open, 2=half_open.",
			},
			[]string{"provider"},
		),
		providerHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_healthy",
				Help:      "1 if the provider is eligible for dispatch, 0 otherwise.",
			},
			[]string{"provider"},
		),
		consecutiveErrors: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_consecutive_errors",
				Help:      "Current consecutive-failure streak per provider.",
			},
			[]string{"provider"},
		),
	}
}

// RecordRequest records one completed provider call: outcome, latency,
// token counts, and estimated cost.
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int64, costUSD float64) {
	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.tokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	c.tokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	c.cost.WithLabelValues(provider, model).Add(costUSD)
}

// SetCircuitState reports a provider's current breaker state: 0
// closed, 1 open, 2 half-open.
func (c *Collector) SetCircuitState(provider string, state int) {
	c.circuitState.WithLabelValues(provider).Set(float64(state))
}

// SetProviderHealthy reports whether provider is currently eligible
// for dispatch.
func (c *Collector) SetProviderHealthy(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.providerHealthy.WithLabelValues(provider).Set(v)
}

// SetConsecutiveErrors reports a provider's current failure streak.
func (c *Collector) SetConsecutiveErrors(provider string, count int64) {
	c.consecutiveErrors.WithLabelValues(provider).Set(float64(count))
}

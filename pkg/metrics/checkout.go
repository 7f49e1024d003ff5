package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records the funnel from session start to finalized order.
type CheckoutMetrics struct {
	sessionsStarted *prometheus.CounterVec
	ordersCreated   *prometheus.CounterVec
	finalizeOutcome *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	providerLatency *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	sessionsStarted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_started",
		Help: "Checkout sessions created, by flow.",
	}, []string{"flow"})
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_created",
		Help: "Orders created at payment entry, by flow and provider.",
	}, []string{"flow", "provider"})
	finalizeOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_finalize_total",
		Help: "Finalize attempts, by provider and outcome.",
	}, []string{"provider", "outcome"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	reg.MustRegister(sessionsStarted, ordersCreated, finalizeOutcome, requestDuration, providerLatency)
	return &CheckoutMetrics{
		sessionsStarted: sessionsStarted,
		ordersCreated:   ordersCreated,
		finalizeOutcome: finalizeOutcome,
		requestDuration: requestDuration,
		providerLatency: providerLatency,
	}
}

// IncSessionStarted counts a new checkout session for the flow.
func (m *CheckoutMetrics) IncSessionStarted(flow string) {
	if m == nil || m.sessionsStarted == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(normalizeLabel(flow)).Inc()
}

// IncOrderCreated counts an order created at payment entry.
func (m *CheckoutMetrics) IncOrderCreated(flow, provider string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(flow), normalizeLabel(provider)).Inc()
}

// IncFinalize counts a finalize attempt with its outcome (paid, failed, replay).
func (m *CheckoutMetrics) IncFinalize(provider, outcome string) {
	if m == nil || m.finalizeOutcome == nil {
		return
	}
	m.finalizeOutcome.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// ObserveRequest records the duration of one HTTP request.
func (m *CheckoutMetrics) ObserveRequest(method, route, status string, duration time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.WithLabelValues(normalizeLabel(method), normalizeLabel(route), normalizeLabel(status)).Observe(duration.Seconds())
}

// ObserveProviderCall records the latency of a payment provider call.
func (m *CheckoutMetrics) ObserveProviderCall(provider, operation string, duration time.Duration) {
	if m == nil || m.providerLatency == nil {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

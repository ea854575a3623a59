// Package metrics holds the Prometheus collectors for the service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors
type Metrics struct {
	SignalsComputed *prometheus.CounterVec
	SignalFailures  *prometheus.CounterVec
	ProviderFetches *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	StoreOperations *prometheus.CounterVec
	CacheRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsComputed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "positions_signals_computed_total",
				Help: "Exit signals computed, by strategy and recommendation",
			},
			[]string{"strategy", "recommendation"},
		),
		SignalFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "positions_signal_failures_total",
				Help: "Positions reported unavailable, by error code",
			},
			[]string{"code"},
		),
		ProviderFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "positions_price_fetches_total",
				Help: "Price history fetches, by backend and result",
			},
			[]string{"provider", "result"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "positions_price_fetch_duration_seconds",
				Help:    "Duration of price history fetches",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"provider"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "positions_store_operations_total",
				Help: "Position store operations, by operation and result",
			},
			[]string{"op", "result"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "positions_price_cache_requests_total",
				Help: "Price history cache lookups, by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.SignalsComputed,
		m.SignalFailures,
		m.ProviderFetches,
		m.ProviderLatency,
		m.StoreOperations,
		m.CacheRequests,
	)
	return m
}

func (m *Metrics) ObserveSignal(strategy, recommendation string) {
	if m == nil {
		return
	}
	m.SignalsComputed.WithLabelValues(strategy, recommendation).Inc()
}

func (m *Metrics) ObserveSignalFailure(code string) {
	if m == nil {
		return
	}
	m.SignalFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveFetch(provider string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.ProviderFetches.WithLabelValues(provider, result(err)).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) ObserveStoreOp(op string, err error) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(op, result(err)).Inc()
}

// ObserveCache records "hit", "miss" or "error"
func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for price extraction.
type Metrics struct {
	Registry           *prometheus.Registry
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	StrategyHitsTotal  *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	extractions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetrack_extractions_total",
			Help: "Total price extractions by outcome and failure kind.",
		},
		[]string{"outcome", "kind"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricetrack_extraction_duration_seconds",
			Help:    "End-to-end latency of price extractions.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60},
		},
	)
	strategyHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetrack_strategy_hits_total",
			Help: "Successful extractions by the parser strategy that found the price.",
		},
		[]string{"strategy"},
	)

	registry.MustRegister(extractions, duration, strategyHits)

	return &Metrics{
		Registry:           registry,
		ExtractionsTotal:   extractions,
		ExtractionDuration: duration,
		StrategyHitsTotal:  strategyHits,
	}
}

// ObserveSuccess records a successful extraction.
func (m *Metrics) ObserveSuccess(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues("success", "").Inc()
	m.StrategyHitsTotal.WithLabelValues(strategy).Inc()
	m.ExtractionDuration.Observe(d.Seconds())
}

// ObserveFailure records a failed extraction by kind.
func (m *Metrics) ObserveFailure(kind Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues("failure", string(kind)).Inc()
	m.ExtractionDuration.Observe(d.Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Queries         *prometheus.CounterVec
	SourceFailures  *prometheus.CounterVec
	SourceFallbacks *prometheus.CounterVec
	SourceLatency   *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	EventsReturned  prometheus.Histogram
	Deduplicated    prometheus.Counter
	DroppedEvents   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_transition_queries_total",
			Help: "Total session queries served, by effective transition mode and outcome",
		}, []string{"mode", "outcome"}),
		SourceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_transition_source_failures_total",
			Help: "Total failed source legs, by source",
		}, []string{"source"}),
		SourceFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_transition_source_fallbacks_total",
			Help: "Total queries answered by a fallback leg, by source and reason",
		}, []string{"source", "reason"}),
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meridian_transition_source_latency_seconds",
			Help:    "Latency of individual source legs",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_transition_breaker_state",
			Help: "Circuit breaker state per source (0 closed, 1 half-open, 2 open)",
		}, []string{"source"}),
		EventsReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meridian_transition_events_returned",
			Help:    "Unified events returned per query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		Deduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meridian_transition_deduplicated_events_total",
			Help: "Total cross-source duplicate events collapsed during merge",
		}),
		DroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meridian_transition_dropped_events_total",
			Help: "Total malformed events excluded during merge",
		}),
	}
}

func (m *Metrics) IncrementQueries(mode, outcome string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) IncrementSourceFailures(source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementFallbacks(source, reason string) {
	if m == nil {
		return
	}
	m.SourceFallbacks.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) ObserveSourceLatency(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceLatency.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(source string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(source).Set(state)
}

func (m *Metrics) ObserveEventsReturned(n int) {
	if m == nil {
		return
	}
	m.EventsReturned.Observe(float64(n))
}

func (m *Metrics) AddDeduplicated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Deduplicated.Add(float64(n))
}

func (m *Metrics) AddDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedEvents.Add(float64(n))
}

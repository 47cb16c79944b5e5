package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Conversions        *prometheus.CounterVec
	ConversionFallback *prometheus.CounterVec
	BoundaryWarnings   prometheus.Counter
	ContextCacheHits   prometheus.Counter
	ContextCacheMisses prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Conversions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_timezone_conversions_total",
			Help: "Total timezone conversions performed, by operation",
		}, []string{"op"}),
		ConversionFallback: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_timezone_conversion_fallbacks_total",
			Help: "Total conversions that fell back to a safe default, by operation and reason",
		}, []string{"op", "reason"}),
		BoundaryWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meridian_timezone_boundary_warnings_total",
			Help: "Total day-boundary computations whose UTC span fell outside the sane band",
		}),
		ContextCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meridian_timezone_context_cache_hits_total",
			Help: "Total timezone context lookups served from cache",
		}),
		ContextCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meridian_timezone_context_cache_misses_total",
			Help: "Total timezone context lookups that recomputed the context",
		}),
	}
}

func (m *Metrics) IncrementConversions(op string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementFallback(op, reason string) {
	if m == nil {
		return
	}
	m.ConversionFallback.WithLabelValues(op, reason).Inc()
}

func (m *Metrics) IncrementBoundaryWarnings() {
	if m == nil {
		return
	}
	m.BoundaryWarnings.Inc()
}

func (m *Metrics) IncrementCacheHits() {
	if m == nil {
		return
	}
	m.ContextCacheHits.Inc()
}

func (m *Metrics) IncrementCacheMisses() {
	if m == nil {
		return
	}
	m.ContextCacheMisses.Inc()
}

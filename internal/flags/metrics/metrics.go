package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RoutingDecisions *prometheus.CounterVec
	GlobalMode       *prometheus.GaugeVec
	EmergencyActive  prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		RoutingDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_flags_routing_decisions_total",
			Help: "Total routing decisions made, by effective transition mode",
		}, []string{"mode"}),
		GlobalMode: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_flags_global_mode",
			Help: "Current global transition mode (1 for the active mode, 0 otherwise)",
		}, []string{"mode"}),
		EmergencyActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meridian_flags_emergency_active",
			Help: "Whether the emergency disable switch is active",
		}),
	}
}

func (m *Metrics) IncrementDecisions(mode string) {
	if m == nil {
		return
	}
	m.RoutingDecisions.WithLabelValues(mode).Inc()
}

func (m *Metrics) SetGlobalMode(mode string) {
	if m == nil {
		return
	}
	for _, known := range []string{"disabled", "dual", "utc-only"} {
		v := 0.0
		if known == mode {
			v = 1.0
		}
		m.GlobalMode.WithLabelValues(known).Set(v)
	}
}

func (m *Metrics) SetEmergency(active bool) {
	if m == nil {
		return
	}
	if active {
		m.EmergencyActive.Set(1)
		return
	}
	m.EmergencyActive.Set(0)
}

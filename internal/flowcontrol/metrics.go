package flowcontrol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the gate's admission behavior to Prometheus.
type Metrics struct {
	AdmittedTotal *prometheus.CounterVec
	RejectedTotal *prometheus.CounterVec
	TokensGauge   prometheus.Gauge
	EmergencyGauge prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		AdmittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch",
			Subsystem: "flowcontrol",
			Name:      "admitted_total",
			Help:      "Events admitted by the flow-control gate, by priority.",
		}, []string{"priority"}),
		RejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch",
			Subsystem: "flowcontrol",
			Name:      "rejected_total",
			Help:      "Events rejected by the flow-control gate, by priority.",
		}, []string{"priority"}),
		TokensGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "securewatch",
			Subsystem: "flowcontrol",
			Name:      "tokens_available",
			Help:      "Tokens currently available in the rate-limit bucket.",
		}),
		EmergencyGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "securewatch",
			Subsystem: "flowcontrol",
			Name:      "emergency_mode",
			Help:      "1 when the gate is in emergency throttling mode, else 0.",
		}),
	}
}

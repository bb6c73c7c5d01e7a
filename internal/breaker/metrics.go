package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes per-breaker Prometheus instrumentation (spec.md §6
// Observable metrics). Built with promauto the same way the teacher's
// escrow package wires its metrics.
type Metrics struct {
	StateGauge     *prometheus.GaugeVec
	TripsTotal     *prometheus.CounterVec
	RequestsTotal  *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		StateGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "securewatch",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed,1=open,2=half_open).",
		}, []string{"name"}),
		TripsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch",
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total number of closed-to-open transitions.",
		}, []string{"name"}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch",
			Subsystem: "breaker",
			Name:      "requests_total",
			Help:      "Total calls admitted through the breaker.",
		}, []string{"name"}),
		FailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch",
			Subsystem: "breaker",
			Name:      "failures_total",
			Help:      "Total calls that recorded a failure outcome.",
		}, []string{"name"}),
	}
}

// Observe wires m as cfg.OnStateChange plus manual counters updated from
// Execute call sites, so callers don't need to touch Prometheus directly.
func (m *Metrics) Observe(cfg *Config) {
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to State) {
		if to == StateOpen {
			m.TripsTotal.WithLabelValues(name).Inc()
		}
		m.StateGauge.WithLabelValues(name).Set(float64(to))
		if userHook != nil {
			userHook(name, from, to)
		}
	}
}

// RecordCall updates the requests/failures counters for name after a call.
func (m *Metrics) RecordCall(name string, success bool) {
	m.RequestsTotal.WithLabelValues(name).Inc()
	if !success {
		m.FailuresTotal.WithLabelValues(name).Inc()
	}
}

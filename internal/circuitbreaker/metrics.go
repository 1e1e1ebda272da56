package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/f5xc-exporter/internal/metrics"
)

// Metrics exposes breaker state per endpoint.
type Metrics struct {
	state    *prometheus.GaugeVec
	failures *prometheus.GaugeVec
	cleaned  prometheus.Counter
}

func NewMetrics(f *metrics.MetricFactory) *Metrics {
	return &Metrics{
		state: f.NewGaugeVec("f5xc_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=open, 2=half_open)", "endpoint"),
		failures: f.NewGaugeVec("f5xc_circuit_breaker_failures",
			"Circuit breaker consecutive failure count", "endpoint"),
		cleaned: f.NewCounter("f5xc_circuit_breaker_endpoints_cleaned_total",
			"Total number of stale circuit breaker endpoints removed"),
	}
}

func (m *Metrics) observe(endpoint string, s State, failures int) {
	m.state.WithLabelValues(endpoint).Set(float64(s))
	m.failures.WithLabelValues(endpoint).Set(float64(failures))
}

func (m *Metrics) forget(endpoints []string) {
	for _, ep := range endpoints {
		m.state.DeleteLabelValues(ep)
		m.failures.DeleteLabelValues(ep)
	}
	m.cleaned.Add(float64(len(endpoints)))
}

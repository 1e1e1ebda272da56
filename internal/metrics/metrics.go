package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every exporter metric.
const Namespace = "f5xc"

// Registry isolates callers from the concrete Prometheus registry.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// NewRegistry creates the exporter registry. Process and Go runtime collectors are optional.
func NewRegistry(withRuntime bool) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return reg
}

// MetricFactory creates and registers metrics against one registerer.
type MetricFactory struct {
	reg prometheus.Registerer
}

// NewMetricFactory wraps reg. A nil reg yields unregistered metrics, handy in tests.
func NewMetricFactory(reg prometheus.Registerer) *MetricFactory {
	return &MetricFactory{reg: reg}
}

func (f *MetricFactory) NewGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(f.reg).NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
}

func (f *MetricFactory) NewGauge(name, help string) prometheus.Gauge {
	return promauto.With(f.reg).NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func (f *MetricFactory) NewCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func (f *MetricFactory) NewCounter(name, help string) prometheus.Counter {
	return promauto.With(f.reg).NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// CollectionStatus is the pair of gauges every collector reports after a run.
type CollectionStatus struct {
	Success  *prometheus.GaugeVec
	Duration *prometheus.GaugeVec
}

// NewCollectionStatus creates f5xc_<collector>_collection_success and _collection_duration_seconds.
func (f *MetricFactory) NewCollectionStatus(collector string, labels ...string) CollectionStatus {
	if len(labels) == 0 {
		labels = []string{"tenant"}
	}
	return CollectionStatus{
		Success: f.NewGaugeVec(
			Namespace+"_"+collector+"_collection_success",
			"Whether the last "+collector+" collection succeeded (1=success, 0=failure)",
			labels...),
		Duration: f.NewGaugeVec(
			Namespace+"_"+collector+"_collection_duration_seconds",
			"Time taken by the last "+collector+" collection",
			labels...),
	}
}

// Observe records one run outcome.
func (s CollectionStatus) Observe(success bool, seconds float64, labelValues ...string) {
	v := 0.0
	if success {
		v = 1
	}
	s.Success.WithLabelValues(labelValues...).Set(v)
	s.Duration.WithLabelValues(labelValues...).Set(seconds)
}

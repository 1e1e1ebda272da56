package cardinality

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/metrics"
)

// Limit types, used as the limit_type label and as Rejections keys.
const (
	LimitNamespace    = "namespace"
	LimitLoadBalancer = "load_balancer"
	LimitDNSZone      = "dns_zone"
)

// Limits caps the number of distinct resource keys. Zero means unlimited.
type Limits struct {
	MaxNamespaces                int
	MaxLoadBalancersPerNamespace int
	MaxDNSZones                  int
	// WarnCardinalityThreshold logs a warning when one metric reports more series. Zero disables.
	WarnCardinalityThreshold int
}

func (l Limits) validate() error {
	for name, v := range map[string]int{
		"max_namespaces":                   l.MaxNamespaces,
		"max_load_balancers_per_namespace": l.MaxLoadBalancersPerNamespace,
		"max_dns_zones":                    l.MaxDNSZones,
		"warn_cardinality_threshold":       l.WarnCardinalityThreshold,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0 (0 = unlimited), got %d", name, v)
		}
	}
	return nil
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	NamespacesTracked            int            `json:"namespaces_tracked"`
	MaxNamespaces                int            `json:"max_namespaces"`
	LoadBalancersTracked         int            `json:"load_balancers_tracked"`
	MaxLoadBalancersPerNamespace int            `json:"max_load_balancers_per_namespace"`
	DNSZonesTracked              int            `json:"dns_zones_tracked"`
	MaxDNSZones                  int            `json:"max_dns_zones"`
	TotalCardinality             int            `json:"total_cardinality"`
	WarnThreshold                int            `json:"warn_threshold"`
	LimitsExceeded               map[string]int `json:"limits_exceeded"`
}

// Limiter admits resource keys up to the configured ceilings. Admitted keys are never evicted.
// All admission checks run as one critical section so concurrent collectors cannot both take
// the last slot.
type Limiter struct {
	mu     sync.Mutex
	limits Limits
	log    *zap.Logger

	namespaces    map[string]struct{}
	loadBalancers map[string]map[string]struct{}
	lbTotal       int
	dnsZones      map[string]struct{}

	rejections  map[string]int
	cardinality map[string]map[string]int // collector -> metric -> series

	exceeded     *prometheus.CounterVec
	metricSeries *prometheus.GaugeVec
	trackedNS    prometheus.Gauge
	trackedLB    prometheus.Gauge
	trackedZones prometheus.Gauge
}

// New returns a Limiter whose gauges are registered through f. Negative limits are rejected.
func New(limits Limits, f *metrics.MetricFactory, log *zap.Logger) (*Limiter, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		limits:        limits,
		log:           log,
		namespaces:    make(map[string]struct{}),
		loadBalancers: make(map[string]map[string]struct{}),
		dnsZones:      make(map[string]struct{}),
		rejections:    make(map[string]int),
		cardinality:   make(map[string]map[string]int),

		exceeded: f.NewCounterVec("f5xc_cardinality_limit_exceeded",
			"Number of times a cardinality limit rejected a resource", "collector", "limit_type"),
		metricSeries: f.NewGaugeVec("f5xc_metric_cardinality",
			"Number of unique label combinations for a metric", "collector", "metric_name"),
		trackedNS:    f.NewGauge("f5xc_tracked_namespaces_total", "Total number of tracked namespaces"),
		trackedLB:    f.NewGauge("f5xc_tracked_load_balancers_total", "Total number of tracked load balancers"),
		trackedZones: f.NewGauge("f5xc_tracked_dns_zones_total", "Total number of tracked DNS zones"),
	}, nil
}

// reject counts one refusal. Caller holds mu.
func (l *Limiter) reject(collector, limitType string) {
	l.rejections[limitType]++
	l.exceeded.WithLabelValues(collector, limitType).Inc()
}

// admitNamespace is TryAdmitNamespace without locking.
func (l *Limiter) admitNamespace(collector, ns string) bool {
	if _, ok := l.namespaces[ns]; ok {
		return true
	}
	if l.limits.MaxNamespaces > 0 && len(l.namespaces) >= l.limits.MaxNamespaces {
		l.reject(collector, LimitNamespace)
		l.log.Warn("namespace cardinality limit exceeded, skipping namespace",
			zap.String("collector", collector),
			zap.String("namespace", ns),
			zap.Int("current_count", len(l.namespaces)),
			zap.Int("max_namespaces", l.limits.MaxNamespaces))
		return false
	}
	l.namespaces[ns] = struct{}{}
	l.trackedNS.Set(float64(len(l.namespaces)))
	return true
}

// TryAdmitNamespace reports whether series for ns may be emitted.
func (l *Limiter) TryAdmitNamespace(collector, ns string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admitNamespace(collector, ns)
}

// TryAdmitLB reports whether series for lb in ns may be emitted. The namespace is admitted
// first; a load balancer in a rejected namespace is always rejected.
func (l *Limiter) TryAdmitLB(collector, ns, lb string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.admitNamespace(collector, ns) {
		return false
	}
	lbs := l.loadBalancers[ns]
	if _, ok := lbs[lb]; ok {
		return true
	}
	if l.limits.MaxLoadBalancersPerNamespace > 0 && len(lbs) >= l.limits.MaxLoadBalancersPerNamespace {
		l.reject(collector, LimitLoadBalancer)
		l.log.Warn("load balancer cardinality limit exceeded for namespace, skipping load balancer",
			zap.String("collector", collector),
			zap.String("namespace", ns),
			zap.String("load_balancer", lb),
			zap.Int("current_count", len(lbs)),
			zap.Int("max_per_namespace", l.limits.MaxLoadBalancersPerNamespace))
		return false
	}
	if lbs == nil {
		lbs = make(map[string]struct{})
		l.loadBalancers[ns] = lbs
	}
	lbs[lb] = struct{}{}
	l.lbTotal++
	l.trackedLB.Set(float64(l.lbTotal))
	return true
}

// TryAdmitDNSZone reports whether series for zone may be emitted.
func (l *Limiter) TryAdmitDNSZone(collector, zone string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.dnsZones[zone]; ok {
		return true
	}
	if l.limits.MaxDNSZones > 0 && len(l.dnsZones) >= l.limits.MaxDNSZones {
		l.reject(collector, LimitDNSZone)
		l.log.Warn("DNS zone cardinality limit exceeded, skipping zone",
			zap.String("collector", collector),
			zap.String("zone", zone),
			zap.Int("current_count", len(l.dnsZones)),
			zap.Int("max_dns_zones", l.limits.MaxDNSZones))
		return false
	}
	l.dnsZones[zone] = struct{}{}
	l.trackedZones.Set(float64(len(l.dnsZones)))
	return true
}

// UpdateMetricCardinality records how many series a collector published for one metric.
func (l *Limiter) UpdateMetricCardinality(collector, metric string, series int) {
	l.mu.Lock()
	perCollector := l.cardinality[collector]
	if perCollector == nil {
		perCollector = make(map[string]int)
		l.cardinality[collector] = perCollector
	}
	perCollector[metric] = series
	threshold := l.limits.WarnCardinalityThreshold
	l.mu.Unlock()

	l.metricSeries.WithLabelValues(collector, metric).Set(float64(series))
	if threshold > 0 && series > threshold {
		l.log.Warn("metric cardinality exceeds warning threshold",
			zap.String("collector", collector),
			zap.String("metric_name", metric),
			zap.Int("cardinality", series),
			zap.Int("threshold", threshold))
	}
}

// CollectorCardinality sums the series last reported by collector.
func (l *Limiter) CollectorCardinality(collector string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.cardinality[collector] {
		total += n
	}
	return total
}

// Rejections returns how many keys of limitType have been refused so far.
func (l *Limiter) Rejections(limitType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejections[limitType]
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for _, perCollector := range l.cardinality {
		for _, n := range perCollector {
			total += n
		}
	}
	exceeded := make(map[string]int, len(l.rejections))
	for k, v := range l.rejections {
		exceeded[k] = v
	}
	return Stats{
		NamespacesTracked:            len(l.namespaces),
		MaxNamespaces:                l.limits.MaxNamespaces,
		LoadBalancersTracked:         l.lbTotal,
		MaxLoadBalancersPerNamespace: l.limits.MaxLoadBalancersPerNamespace,
		DNSZonesTracked:              len(l.dnsZones),
		MaxDNSZones:                  l.limits.MaxDNSZones,
		TotalCardinality:             total,
		WarnThreshold:                l.limits.WarnCardinalityThreshold,
		LimitsExceeded:               exceeded,
	}
}

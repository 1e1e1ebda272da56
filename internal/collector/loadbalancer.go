package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/metrics"
)

const LoadBalancerName = "loadbalancer"

// Virtual host types reported by the service graph.
const (
	HTTPLoadBalancer = "HTTP_LOAD_BALANCER"
	TCPLoadBalancer  = "TCP_LOAD_BALANCER"
	UDPLoadBalancer  = "UDP_LOAD_BALANCER"
)

type metricSpec struct {
	apiType string
	suffix  string
	help    string
}

var (
	httpMetrics = []metricSpec{
		{"HTTP_REQUEST_RATE", "request_rate", "requests per second"},
		{"REQUEST_TO_ORIGIN_RATE", "request_to_origin_rate", "requests to origin per second"},
		{"HTTP_ERROR_RATE", "error_rate", "errors per second"},
		{"HTTP_ERROR_RATE_4XX", "error_rate_4xx", "4xx client errors per second"},
		{"HTTP_ERROR_RATE_5XX", "error_rate_5xx", "5xx server errors per second"},
		{"HTTP_RESPONSE_LATENCY", "latency_seconds", "average response latency in seconds"},
		{"HTTP_RESPONSE_LATENCY_PERCENTILE_50", "latency_p50_seconds", "response latency 50th percentile in seconds"},
		{"HTTP_RESPONSE_LATENCY_PERCENTILE_90", "latency_p90_seconds", "response latency 90th percentile in seconds"},
		{"HTTP_RESPONSE_LATENCY_PERCENTILE_99", "latency_p99_seconds", "response latency 99th percentile in seconds"},
		{"HTTP_APP_LATENCY", "app_latency_seconds", "application processing latency in seconds"},
		{"HTTP_SERVER_DATA_TRANSFER_TIME", "server_data_transfer_time_seconds", "server data transfer time in seconds"},
	}
	tcpMetrics = []metricSpec{
		{"TCP_CONNECTION_RATE", "connection_rate", "connections per second"},
		{"TCP_CONNECTION_DURATION", "connection_duration_seconds", "average connection duration in seconds"},
		{"TCP_ERROR_RATE", "error_rate", "errors per second"},
		{"TCP_ERROR_RATE_CLIENT", "error_rate_client", "client-side errors per second"},
		{"TCP_ERROR_RATE_UPSTREAM", "error_rate_upstream", "upstream errors per second"},
	}
	commonMetrics = []metricSpec{
		{"REQUEST_THROUGHPUT", "request_throughput_bps", "request throughput in bits per second"},
		{"RESPONSE_THROUGHPUT", "response_throughput_bps", "response throughput in bits per second"},
		{"CLIENT_RTT", "client_rtt_seconds", "client round-trip time in seconds"},
		{"SERVER_RTT", "server_rtt_seconds", "server round-trip time in seconds"},
	}
	healthscoreMetrics = []metricSpec{
		{"HEALTHSCORE_OVERALL", "healthscore_overall", "overall health score (0-100)"},
		{"HEALTHSCORE_CONNECTIVITY", "healthscore_connectivity", "connectivity health score (0-100)"},
		{"HEALTHSCORE_PERFORMANCE", "healthscore_performance", "performance health score (0-100)"},
		{"HEALTHSCORE_SECURITY", "healthscore_security", "security health score (0-100)"},
		{"HEALTHSCORE_RELIABILITY", "healthscore_reliability", "reliability health score (0-100)"},
	}
)

// lbFamily holds the gauges of one load balancer type.
type lbFamily struct {
	prefix      string
	metrics     map[string]*prometheus.GaugeVec
	healthscore map[string]*prometheus.GaugeVec
	count       *prometheus.GaugeVec
}

func newLBFamily(f *metrics.MetricFactory, prefix, title string, specs ...[]metricSpec) *lbFamily {
	labels := []string{"tenant", "namespace", "load_balancer", "site", "direction"}
	fam := &lbFamily{
		prefix:      prefix,
		metrics:     make(map[string]*prometheus.GaugeVec),
		healthscore: make(map[string]*prometheus.GaugeVec),
		count: f.NewGaugeVec("f5xc_"+prefix+"_lb_count",
			"Number of "+title+" load balancers discovered", "tenant"),
	}
	for _, group := range specs {
		for _, s := range group {
			fam.metrics[s.apiType] = f.NewGaugeVec("f5xc_"+prefix+"_lb_"+s.suffix, title+" LB "+s.help, labels...)
		}
	}
	for _, s := range healthscoreMetrics {
		fam.healthscore[s.apiType] = f.NewGaugeVec("f5xc_"+prefix+"_lb_"+s.suffix, title+" LB "+s.help, labels...)
	}
	return fam
}

// LoadBalancerCollector publishes HTTP, TCP and UDP load balancer metrics from one service
// graph call per namespace.
type LoadBalancerCollector struct {
	deps     Deps
	log      *zap.Logger
	step     time.Duration
	families map[string]*lbFamily
	status   metrics.CollectionStatus
}

func NewLoadBalancerCollector(deps Deps, step time.Duration) *LoadBalancerCollector {
	f := deps.Factory
	if step <= 0 {
		step = 2 * time.Minute
	}
	return &LoadBalancerCollector{
		deps: deps,
		log:  deps.logger(LoadBalancerName),
		step: step,
		families: map[string]*lbFamily{
			HTTPLoadBalancer: newLBFamily(f, "http", "HTTP", httpMetrics, commonMetrics),
			TCPLoadBalancer:  newLBFamily(f, "tcp", "TCP", tcpMetrics, commonMetrics),
			UDPLoadBalancer:  newLBFamily(f, "udp", "UDP", commonMetrics),
		},
		status: f.NewCollectionStatus("lb"),
	}
}

func (c *LoadBalancerCollector) Name() string { return LoadBalancerName }

func (c *LoadBalancerCollector) Run(ctx context.Context) Outcome {
	start := time.Now()
	namespaces, _, err := admittedNamespaces(ctx, c.deps, LoadBalancerName, c.log)
	if err != nil {
		elapsed := time.Since(start)
		c.log.Error("failed to collect LB metrics", zap.Error(err))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: fmt.Errorf("list namespaces: %w", err)}
	}

	var (
		counts    = map[string]int{}
		nodes     int
		collected int
		lastErr   error
	)
	for _, ns := range namespaces {
		graph, err := c.deps.API.ServiceGraph(ctx, ns, c.step)
		if err != nil {
			logCallError(c.log, "failed to get LB metrics for namespace", err, zap.String("namespace", ns))
			lastErr = err
			continue
		}
		collected++
		nodes += len(graph)
		for i := range graph {
			if lbType, ok := c.processNode(&graph[i]); ok {
				counts[lbType]++
			}
		}
	}

	if collected == 0 && lastErr != nil {
		elapsed := time.Since(start)
		c.log.Error("LB metrics collection failed for every namespace", zap.Error(lastErr))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: fmt.Errorf("service graph failed for every namespace: %w", lastErr)}
	}

	for lbType, fam := range c.families {
		fam.count.WithLabelValues(c.deps.Tenant).Set(float64(counts[lbType]))
		c.deps.Limiter.UpdateMetricCardinality(LoadBalancerName, fam.prefix+"_lb_metrics", counts[lbType])
	}

	elapsed := time.Since(start)
	c.status.Observe(true, elapsed.Seconds(), c.deps.Tenant)
	c.log.Info("LB metrics collection successful",
		zap.Duration("duration", elapsed),
		zap.Int("total_nodes", nodes),
		zap.Int("http_lb_count", counts[HTTPLoadBalancer]),
		zap.Int("tcp_lb_count", counts[TCPLoadBalancer]),
		zap.Int("udp_lb_count", counts[UDPLoadBalancer]))
	return Outcome{Success: true, Duration: elapsed}
}

// processNode emits the node's series and returns its type, or false if it was skipped.
func (c *LoadBalancerCollector) processNode(node *client.GraphNode) (string, bool) {
	id := node.ID
	fam, ok := c.families[id.VirtualHostType]
	if !ok || id.Vhost == "" || id.Vhost == "unknown" {
		return "", false
	}
	ns := orUnknown(id.Namespace)
	site := orUnknown(id.Site)
	if !c.deps.Limiter.TryAdmitLB(LoadBalancerName, ns, id.Vhost) {
		return "", false
	}

	emit := func(gauges map[string]*prometheus.GaugeVec, points []client.GraphMetric, direction string) {
		for _, p := range points {
			gauge, ok := gauges[p.Type]
			if !ok {
				continue
			}
			latest, ok := client.Latest(p.Value.Raw)
			if !ok || latest.Value == "" {
				continue
			}
			setValue(c.log, gauge, []string{c.deps.Tenant, ns, id.Vhost, site, direction}, latest.Value,
				zap.String("type", p.Type), zap.String("load_balancer", id.Vhost))
		}
	}
	emit(fam.metrics, node.Data.Metric.Downstream, "downstream")
	emit(fam.metrics, node.Data.Metric.Upstream, "upstream")
	emit(fam.healthscore, node.Data.Healthscore.Downstream, "downstream")
	emit(fam.healthscore, node.Data.Healthscore.Upstream, "upstream")
	return id.VirtualHostType, true
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

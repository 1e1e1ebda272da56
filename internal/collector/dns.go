package collector

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/metrics"
)

const DNSName = "dns"

// DNSCollector publishes zone query counts and DNS load balancer health. All DNS resources
// live in the system namespace.
type DNSCollector struct {
	deps Deps
	log  *zap.Logger
	step time.Duration

	zoneQueries  *prometheus.GaugeVec
	lbHealth     *prometheus.GaugeVec
	memberHealth *prometheus.GaugeVec
	zoneCount    *prometheus.GaugeVec
	lbCount      *prometheus.GaugeVec
	status       metrics.CollectionStatus
}

func NewDNSCollector(deps Deps, step time.Duration) *DNSCollector {
	f := deps.Factory
	if step <= 0 {
		step = 5 * time.Minute
	}
	return &DNSCollector{
		deps:         deps,
		log:          deps.logger(DNSName),
		step:         step,
		zoneQueries:  f.NewGaugeVec("f5xc_dns_zone_query_count", "DNS zone query count over the last step", "tenant", "zone"),
		lbHealth:     f.NewGaugeVec("f5xc_dns_lb_health_status", "DNS load balancer health (1=healthy, 0=unhealthy)", "tenant", "dns_lb"),
		memberHealth: f.NewGaugeVec("f5xc_dns_lb_pool_member_health", "DNS load balancer pool member health (1=healthy, 0=unhealthy)", "tenant", "dns_lb", "pool", "member"),
		zoneCount:    f.NewGaugeVec("f5xc_dns_zone_count", "Number of DNS zones discovered", "tenant"),
		lbCount:      f.NewGaugeVec("f5xc_dns_lb_count", "Number of DNS load balancers discovered", "tenant"),
		status:       f.NewCollectionStatus(DNSName),
	}
}

func (c *DNSCollector) Name() string { return DNSName }

// Run makes three independent calls. The run fails only if all of them fail.
func (c *DNSCollector) Run(ctx context.Context) Outcome {
	start := time.Now()

	zones, zoneErr := c.collectZones(ctx)
	lbs, lbErr := c.collectLBHealth(ctx)
	memberErr := c.collectPoolMembers(ctx)

	elapsed := time.Since(start)
	if zoneErr != nil && lbErr != nil && memberErr != nil {
		err := errors.Join(zoneErr, lbErr, memberErr)
		c.log.Error("failed to collect DNS metrics", zap.Error(err))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: err}
	}

	if zoneErr == nil {
		c.zoneCount.WithLabelValues(c.deps.Tenant).Set(float64(zones))
		c.deps.Limiter.UpdateMetricCardinality(DNSName, "dns_zone_metrics", zones)
	}
	if lbErr == nil {
		c.lbCount.WithLabelValues(c.deps.Tenant).Set(float64(lbs))
		c.deps.Limiter.UpdateMetricCardinality(DNSName, "dns_lb_metrics", lbs)
	}
	c.status.Observe(true, elapsed.Seconds(), c.deps.Tenant)
	c.log.Info("DNS metrics collection successful",
		zap.Duration("duration", elapsed),
		zap.Int("zone_count", zones),
		zap.Int("lb_count", lbs))
	return Outcome{Success: true, Duration: elapsed}
}

func (c *DNSCollector) collectZones(ctx context.Context) (int, error) {
	items, err := c.deps.API.DNSZoneMetrics(ctx, c.step)
	if err != nil {
		logCallError(c.log, "failed to get DNS zone metrics", err)
		return 0, err
	}
	n := 0
	for _, item := range items {
		zone := item.Labels["DNS_ZONE_NAME"]
		if zone == "" || zone == "unknown" {
			continue
		}
		latest, ok := client.Latest(item.Value)
		if !ok {
			continue
		}
		if !c.deps.Limiter.TryAdmitDNSZone(DNSName, zone) {
			continue
		}
		if setValue(c.log, c.zoneQueries, []string{c.deps.Tenant, zone}, latest.Value, zap.String("zone", zone)) {
			n++
		}
	}
	return n, nil
}

func (c *DNSCollector) collectLBHealth(ctx context.Context) (int, error) {
	items, err := c.deps.API.DNSLBHealth(ctx)
	if err != nil {
		logCallError(c.log, "failed to get DNS LB health status", err)
		return 0, err
	}
	n := 0
	for _, item := range items {
		if item.Name == "" || item.Name == "unknown" {
			continue
		}
		c.lbHealth.WithLabelValues(c.deps.Tenant, item.Name).Set(healthy(item.HealthStatus))
		n++
	}
	return n, nil
}

func (c *DNSCollector) collectPoolMembers(ctx context.Context) error {
	items, err := c.deps.API.DNSPoolMemberHealth(ctx)
	if err != nil {
		logCallError(c.log, "failed to get DNS LB pool member health", err)
		return err
	}
	for _, item := range items {
		if item.DNSLBName == "" || item.PoolName == "" {
			continue
		}
		c.memberHealth.WithLabelValues(c.deps.Tenant, item.DNSLBName, item.PoolName, orUnknown(item.MemberAddress)).
			Set(healthy(item.HealthStatus))
	}
	return nil
}

func healthy(status string) float64 {
	if status == "HEALTHY" {
		return 1
	}
	return 0
}

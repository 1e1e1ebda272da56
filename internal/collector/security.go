package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/metrics"
)

const SecurityName = "security"

// SecurityCollector publishes app firewall counters per load balancer and security event
// totals per namespace. Two calls per namespace.
type SecurityCollector struct {
	deps Deps
	log  *zap.Logger
	step time.Duration

	firewall map[string]*prometheus.GaugeVec // by app firewall metric type
	events   map[string]*prometheus.GaugeVec // by sec_event_type
	dos      *prometheus.GaugeVec
	status   metrics.CollectionStatus
}

func NewSecurityCollector(deps Deps, step time.Duration) *SecurityCollector {
	f := deps.Factory
	lb := []string{"tenant", "namespace", "load_balancer"}
	ns := []string{"tenant", "namespace"}
	if step <= 0 {
		step = 5 * time.Minute
	}
	return &SecurityCollector{
		deps: deps,
		log:  deps.logger(SecurityName),
		step: step,
		firewall: map[string]*prometheus.GaugeVec{
			"TOTAL_REQUESTS":    f.NewGaugeVec("f5xc_security_total_requests", "Total requests processed by app firewall", lb...),
			"ATTACKED_REQUESTS": f.NewGaugeVec("f5xc_security_attacked_requests", "WAF blocked/attacked requests", lb...),
			"BOT_DETECTION":     f.NewGaugeVec("f5xc_security_bot_detections", "Total bot detections (all classifications)", lb...),
		},
		events: map[string]*prometheus.GaugeVec{
			"waf_sec_event":            f.NewGaugeVec("f5xc_security_waf_events", "WAF security event count (namespace total)", ns...),
			"bot_defense_sec_event":    f.NewGaugeVec("f5xc_security_bot_defense_events", "Bot defense security event count (namespace total)", ns...),
			"api_sec_event":            f.NewGaugeVec("f5xc_security_api_events", "API security event count (namespace total)", ns...),
			"svc_policy_sec_event":     f.NewGaugeVec("f5xc_security_service_policy_events", "Service policy security event count (namespace total)", ns...),
			"malicious_user_sec_event": f.NewGaugeVec("f5xc_security_malicious_user_events", "Malicious user event count (namespace total)", ns...),
		},
		dos:    f.NewGaugeVec("f5xc_security_dos_events", "DDoS/DoS event count (namespace total)", ns...),
		status: f.NewCollectionStatus(SecurityName),
	}
}

func (c *SecurityCollector) Name() string { return SecurityName }

func (c *SecurityCollector) Run(ctx context.Context) Outcome {
	start := time.Now()
	namespaces, total, err := admittedNamespaces(ctx, c.deps, SecurityName, c.log)
	if err != nil {
		elapsed := time.Since(start)
		c.log.Error("failed to collect security metrics", zap.Error(err))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: fmt.Errorf("list namespaces: %w", err)}
	}

	var (
		processed int
		lastErr   error
	)
	for _, ns := range namespaces {
		fwErr := c.collectFirewall(ctx, ns)
		evErr := c.collectEvents(ctx, ns)
		if fwErr != nil && evErr != nil {
			c.log.Warn("failed to collect security metrics for namespace", zap.String("namespace", ns))
			lastErr = errors.Join(fwErr, evErr)
			continue
		}
		processed++
	}

	elapsed := time.Since(start)
	if processed == 0 && lastErr != nil {
		c.log.Error("security metrics collection failed for every namespace", zap.Error(lastErr))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: fmt.Errorf("security collection failed for every namespace: %w", lastErr)}
	}
	c.status.Observe(true, elapsed.Seconds(), c.deps.Tenant)
	c.deps.Limiter.UpdateMetricCardinality(SecurityName, "security_metrics", processed)
	c.log.Info("security metrics collection successful",
		zap.Duration("duration", elapsed),
		zap.Int("namespace_count", total),
		zap.Int("namespaces_processed", processed))
	return Outcome{Success: true, Duration: elapsed}
}

func (c *SecurityCollector) collectFirewall(ctx context.Context, ns string) error {
	groups, err := c.deps.API.AppFirewallMetrics(ctx, ns, c.step)
	if err != nil {
		logCallError(c.log, "failed to get app firewall metrics", err, zap.String("namespace", ns))
		return err
	}
	for _, group := range groups {
		gauge, ok := c.firewall[group.Type]
		if !ok {
			continue
		}
		for _, series := range group.Data {
			lb := series.Key["VIRTUAL_HOST"]
			if lb == "" {
				lb = "unknown"
			}
			latest, ok := client.Latest(series.Value)
			if !ok {
				continue
			}
			if !c.deps.Limiter.TryAdmitLB(SecurityName, ns, lb) {
				continue
			}
			setValue(c.log, gauge, []string{c.deps.Tenant, ns, lb}, latest.Value,
				zap.String("metric_type", group.Type), zap.String("load_balancer", lb))
		}
	}
	return nil
}

func (c *SecurityCollector) collectEvents(ctx context.Context, ns string) error {
	buckets, err := c.deps.API.SecurityEventCounts(ctx, ns, c.step)
	if err != nil {
		logCallError(c.log, "failed to get security event counts", err, zap.String("namespace", ns))
		return err
	}
	dos := 0.0
	for _, b := range buckets {
		count, err := b.Count.Float()
		if err != nil {
			continue
		}
		if b.Key == "ddos_sec_event" || b.Key == "dos_sec_event" {
			dos += count
			continue
		}
		if gauge, ok := c.events[b.Key]; ok {
			gauge.WithLabelValues(c.deps.Tenant, ns).Set(count)
		}
	}
	c.dos.WithLabelValues(c.deps.Tenant, ns).Set(dos)
	return nil
}

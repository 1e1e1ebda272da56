package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/executor"
	"github.com/f5xc-exporter/internal/metrics"
)

const SyntheticName = "synthetic"

var monitorTypes = []string{"http", "dns"}

type monitorGauges struct {
	total, healthy, critical *prometheus.GaugeVec
}

// SyntheticCollector publishes synthetic monitor counts per namespace and monitor type.
type SyntheticCollector struct {
	deps   Deps
	log    *zap.Logger
	gauges map[string]monitorGauges
	status metrics.CollectionStatus
}

func NewSyntheticCollector(deps Deps) *SyntheticCollector {
	f := deps.Factory
	gauges := make(map[string]monitorGauges, len(monitorTypes))
	for _, t := range monitorTypes {
		upper := map[string]string{"http": "HTTP", "dns": "DNS"}[t]
		prefix := "f5xc_synthetic_" + t + "_monitors_"
		gauges[t] = monitorGauges{
			total:    f.NewGaugeVec(prefix+"total", "Total "+upper+" synthetic monitors", "namespace"),
			healthy:  f.NewGaugeVec(prefix+"healthy", "Healthy "+upper+" synthetic monitors", "namespace"),
			critical: f.NewGaugeVec(prefix+"critical", "Critical "+upper+" synthetic monitors", "namespace"),
		}
	}
	return &SyntheticCollector{
		deps:   deps,
		log:    deps.logger(SyntheticName),
		gauges: gauges,
		status: f.NewCollectionStatus(SyntheticName),
	}
}

func (c *SyntheticCollector) Name() string { return SyntheticName }

func (c *SyntheticCollector) Run(ctx context.Context) Outcome {
	start := time.Now()
	namespaces, total, err := admittedNamespaces(ctx, c.deps, SyntheticName, c.log)
	if err != nil {
		elapsed := time.Since(start)
		c.log.Error("synthetic monitoring metrics collection failed", zap.Error(err))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: fmt.Errorf("list namespaces: %w", err)}
	}

	var (
		answered int
		lastErr  error
	)
	for _, ns := range namespaces {
		for _, t := range monitorTypes {
			if err := c.collectSummary(ctx, ns, t); err != nil {
				lastErr = err
				continue
			}
			answered++
		}
	}

	elapsed := time.Since(start)
	if answered == 0 && lastErr != nil {
		c.log.Error("synthetic monitoring metrics collection failed for every namespace", zap.Error(lastErr))
		c.status.Observe(false, elapsed.Seconds(), c.deps.Tenant)
		return Outcome{Duration: elapsed, Err: fmt.Errorf("synthetic summary failed for every namespace: %w", lastErr)}
	}
	c.status.Observe(true, elapsed.Seconds(), c.deps.Tenant)
	c.log.Info("synthetic monitoring metrics collection successful",
		zap.Duration("duration", elapsed),
		zap.Int("namespace_count", total))
	return Outcome{Success: true, Duration: elapsed}
}

// collectSummary returns nil when the namespace has no monitors of monitorType.
func (c *SyntheticCollector) collectSummary(ctx context.Context, ns, monitorType string) error {
	sum, err := c.deps.API.SyntheticSummary(ctx, ns, monitorType)
	if err != nil {
		if executor.IsNotFound(err) {
			c.log.Debug("no synthetic monitors in namespace",
				zap.String("namespace", ns), zap.String("monitor_type", monitorType))
			return nil
		}
		logCallError(c.log, "failed to get synthetic monitor summary", err,
			zap.String("namespace", ns), zap.String("monitor_type", monitorType))
		return err
	}

	g := c.gauges[monitorType]
	set := func(vec *prometheus.GaugeVec, v client.Value) {
		if v == "" {
			v = "0"
		}
		setValue(c.log, vec, []string{ns}, v, zap.String("namespace", ns), zap.String("monitor_type", monitorType))
	}
	set(g.total, sum.NumberOfMonitors)
	set(g.healthy, sum.HealthyMonitorCount)
	set(g.critical, sum.CriticalMonitorCount)
	return nil
}

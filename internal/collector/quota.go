package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/metrics"
)

const QuotaName = "quota"

// QuotaCollector publishes limit, usage and utilisation of every quota of the configured namespaces.
type QuotaCollector struct {
	deps       Deps
	log        *zap.Logger
	namespaces []string

	limit       *prometheus.GaugeVec
	current     *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	status      metrics.CollectionStatus
}

func NewQuotaCollector(deps Deps, namespaces []string) *QuotaCollector {
	labels := []string{"tenant", "namespace", "resource_type", "resource_name"}
	if len(namespaces) == 0 {
		namespaces = []string{client.SystemNamespace}
	}
	return &QuotaCollector{
		deps:        deps,
		log:         deps.logger(QuotaName),
		namespaces:  namespaces,
		limit:       deps.Factory.NewGaugeVec("f5xc_quota_limit", "F5XC quota limit", labels...),
		current:     deps.Factory.NewGaugeVec("f5xc_quota_current", "F5XC quota current usage", labels...),
		utilization: deps.Factory.NewGaugeVec("f5xc_quota_utilization_percentage", "F5XC quota utilization percentage", labels...),
		status:      deps.Factory.NewCollectionStatus(QuotaName, "tenant", "namespace"),
	}
}

func (c *QuotaCollector) Name() string { return QuotaName }

// Run collects every configured namespace. It fails only when no namespace could be collected.
func (c *QuotaCollector) Run(ctx context.Context) Outcome {
	start := time.Now()
	var (
		collected int
		series    int
		lastErr   error
	)
	for _, ns := range c.namespaces {
		if !c.deps.Limiter.TryAdmitNamespace(QuotaName, ns) {
			c.log.Warn("skipping quota collection due to namespace limit", zap.String("namespace", ns))
			continue
		}
		n, err := c.collectNamespace(ctx, ns)
		if err != nil {
			lastErr = err
			continue
		}
		collected++
		series += n
	}

	c.deps.Limiter.UpdateMetricCardinality(QuotaName, "quota_metrics", series)
	out := Outcome{Success: collected > 0 || lastErr == nil, Duration: time.Since(start), Err: lastErr}
	if !out.Success {
		out.Err = fmt.Errorf("quota collection failed for every namespace: %w", lastErr)
	}
	return out
}

func (c *QuotaCollector) collectNamespace(ctx context.Context, ns string) (int, error) {
	start := time.Now()
	usage, err := c.deps.API.QuotaUsage(ctx, ns)
	if err != nil {
		logCallError(c.log, "failed to collect quota metrics", err, zap.String("namespace", ns))
		c.status.Success.WithLabelValues(c.deps.Tenant, ns).Set(0)
		return 0, err
	}

	n := c.section(ns, "quota", usage.QuotaUsage) +
		c.section(ns, "resource", usage.Resources) +
		c.section(ns, "object", usage.Objects)

	elapsed := time.Since(start)
	c.status.Observe(true, elapsed.Seconds(), c.deps.Tenant, ns)
	c.log.Info("quota metrics collection successful",
		zap.String("namespace", ns),
		zap.Duration("duration", elapsed),
		zap.Int("quota_metric_count", n))
	return n, nil
}

func (c *QuotaCollector) section(ns, resourceType string, entries map[string]client.QuotaEntry) int {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		rawLimit, rawCurrent, ok := entries[name].Values()
		if !ok {
			continue
		}
		limit, errL := rawLimit.Float()
		current, errC := rawCurrent.Float()
		if errL != nil || errC != nil {
			c.log.Warn("failed to parse quota values",
				zap.String("resource_name", name),
				zap.String("limit", string(rawLimit)),
				zap.String("current", string(rawCurrent)))
			continue
		}

		lv := []string{c.deps.Tenant, ns, resourceType, name}
		c.limit.WithLabelValues(lv...).Set(limit)
		c.current.WithLabelValues(lv...).Set(current)
		c.utilization.WithLabelValues(lv...).Set(Utilization(limit, current))
		n++
	}
	return n
}

// Utilization is current as a percentage of limit; 0 when the limit is not positive or usage is negative.
func Utilization(limit, current float64) float64 {
	if limit <= 0 || current < 0 {
		return 0
	}
	return current / limit * 100
}

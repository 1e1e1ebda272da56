// Package collector turns F5XC API responses into Prometheus series. Each collector runs
// independently on its own interval; a failure in one namespace or call never aborts the
// rest of the cycle.
package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/executor"
	"github.com/f5xc-exporter/internal/metrics"
)

// Collector is one unit of scheduled collection.
type Collector interface {
	Name() string
	Run(ctx context.Context) Outcome
}

// Outcome is the result of one Run.
type Outcome struct {
	Success  bool
	Duration time.Duration
	Err      error
}

// API is the subset of the F5XC client the collectors use.
type API interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	QuotaUsage(ctx context.Context, namespace string) (*client.QuotaUsage, error)
	AppFirewallMetrics(ctx context.Context, namespace string, step time.Duration) ([]client.FirewallMetric, error)
	SecurityEventCounts(ctx context.Context, namespace string, step time.Duration) ([]client.EventBucket, error)
	SyntheticSummary(ctx context.Context, namespace, monitorType string) (*client.SyntheticSummary, error)
	ServiceGraph(ctx context.Context, namespace string, step time.Duration) ([]client.GraphNode, error)
	DNSZoneMetrics(ctx context.Context, step time.Duration) ([]client.DNSZoneMetric, error)
	DNSLBHealth(ctx context.Context) ([]client.DNSLBHealth, error)
	DNSPoolMemberHealth(ctx context.Context) ([]client.DNSPoolMemberHealth, error)
}

// Limiter admits resource keys before any series is emitted for them.
type Limiter interface {
	TryAdmitNamespace(collector, ns string) bool
	TryAdmitLB(collector, ns, lb string) bool
	TryAdmitDNSZone(collector, zone string) bool
	UpdateMetricCardinality(collector, metric string, series int)
}

// Deps are shared by every collector.
type Deps struct {
	API     API
	Limiter Limiter
	Factory *metrics.MetricFactory
	Tenant  string
	Log     *zap.Logger
}

func (d Deps) logger(name string) *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log.With(zap.String("component", name))
}

// logCallError logs a failed upstream call at a level matching its kind. Breaker
// rejections repeat every cycle while an endpoint is open, so they go to debug.
func logCallError(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case executor.IsBreakerOpen(err):
		log.Debug(msg+": circuit breaker open", fields...)
	case executor.IsAuth(err):
		log.Error(msg+": authentication failed", fields...)
	case executor.IsRetryable(err):
		log.Warn(msg+": retries exhausted", fields...)
	default:
		log.Warn(msg, fields...)
	}
}

// setValue parses v and sets it on the series of vec named by labels. Unparseable values
// are logged and no series is created.
func setValue(log *zap.Logger, vec *prometheus.GaugeVec, labels []string, v client.Value, fields ...zap.Field) bool {
	f, err := v.Float()
	if err != nil {
		log.Warn("failed to parse metric value", append(fields, zap.Error(err))...)
		return false
	}
	vec.WithLabelValues(labels...).Set(f)
	return true
}

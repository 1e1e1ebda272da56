package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/f5xc-exporter/internal/cardinality"
	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/collector"
	"github.com/f5xc-exporter/internal/executor"
	"github.com/f5xc-exporter/internal/metrics"
)

const tenant = "acme"

// fakeAPI answers from fields; nil funcs return empty results.
type fakeAPI struct {
	namespaces    []string
	namespacesErr error

	quota      func(ns string) (*client.QuotaUsage, error)
	firewall   func(ns string) ([]client.FirewallMetric, error)
	events     func(ns string) ([]client.EventBucket, error)
	synthetic  func(ns, monitorType string) (*client.SyntheticSummary, error)
	graph      func(ns string) ([]client.GraphNode, error)
	dnsZones   func() ([]client.DNSZoneMetric, error)
	dnsLBs     func() ([]client.DNSLBHealth, error)
	dnsMembers func() ([]client.DNSPoolMemberHealth, error)
}

func (f *fakeAPI) ListNamespaces(context.Context) ([]string, error) {
	return f.namespaces, f.namespacesErr
}

func (f *fakeAPI) QuotaUsage(_ context.Context, ns string) (*client.QuotaUsage, error) {
	if f.quota == nil {
		return &client.QuotaUsage{}, nil
	}
	return f.quota(ns)
}

func (f *fakeAPI) AppFirewallMetrics(_ context.Context, ns string, _ time.Duration) ([]client.FirewallMetric, error) {
	if f.firewall == nil {
		return nil, nil
	}
	return f.firewall(ns)
}

func (f *fakeAPI) SecurityEventCounts(_ context.Context, ns string, _ time.Duration) ([]client.EventBucket, error) {
	if f.events == nil {
		return nil, nil
	}
	return f.events(ns)
}

func (f *fakeAPI) SyntheticSummary(_ context.Context, ns, monitorType string) (*client.SyntheticSummary, error) {
	if f.synthetic == nil {
		return &client.SyntheticSummary{}, nil
	}
	return f.synthetic(ns, monitorType)
}

func (f *fakeAPI) ServiceGraph(_ context.Context, ns string, _ time.Duration) ([]client.GraphNode, error) {
	if f.graph == nil {
		return nil, nil
	}
	return f.graph(ns)
}

func (f *fakeAPI) DNSZoneMetrics(context.Context, time.Duration) ([]client.DNSZoneMetric, error) {
	if f.dnsZones == nil {
		return nil, nil
	}
	return f.dnsZones()
}

func (f *fakeAPI) DNSLBHealth(context.Context) ([]client.DNSLBHealth, error) {
	if f.dnsLBs == nil {
		return nil, nil
	}
	return f.dnsLBs()
}

func (f *fakeAPI) DNSPoolMemberHealth(context.Context) ([]client.DNSPoolMemberHealth, error) {
	if f.dnsMembers == nil {
		return nil, nil
	}
	return f.dnsMembers()
}

type fixture struct {
	reg     *prometheus.Registry
	limiter *cardinality.Limiter
	deps    collector.Deps
}

func newFixture(t *testing.T, api collector.API, limits cardinality.Limits) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	f := metrics.NewMetricFactory(reg)
	lim, err := cardinality.New(limits, f, nil)
	require.NoError(t, err)
	return &fixture{
		reg:     reg,
		limiter: lim,
		deps: collector.Deps{
			API:     api,
			Limiter: lim,
			Factory: f,
			Tenant:  tenant,
			Log:     zaptest.NewLogger(t),
		},
	}
}

// value returns the gauge value of the series of name whose labels include want.
func (fx *fixture) value(t *testing.T, name string, want map[string]string) (float64, bool) {
	t.Helper()
	families, err := fx.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue next
				}
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

// series counts the series of name.
func (fx *fixture) series(t *testing.T, name string) int {
	t.Helper()
	families, err := fx.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func samples(values ...string) []client.Sample {
	out := make([]client.Sample, len(values))
	for i, v := range values {
		out[i] = client.Sample{Value: client.Value(v)}
	}
	return out
}

func callErr(kind executor.Kind, status int) error {
	return &executor.CallError{Kind: kind, StatusCode: status, Endpoint: "/test"}
}

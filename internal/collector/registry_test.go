package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5xc-exporter/internal/cardinality"
	"github.com/f5xc-exporter/internal/collector"
	"github.com/f5xc-exporter/pkg/config"
)

type stubCollector struct{ name string }

func (s stubCollector) Name() string { return s.name }
func (s stubCollector) Run(context.Context) collector.Outcome { return collector.Outcome{Success: true} }

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := collector.NewRegistry(nil)
	require.NoError(t, r.Register(stubCollector{"a"}, time.Minute))
	require.NoError(t, r.Register(stubCollector{"b"}, 0))
	assert.ErrorContains(t, r.Register(stubCollector{"a"}, time.Second), "already registered")

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Collector.Name())
	assert.True(t, entries[0].Enabled())
	assert.False(t, entries[1].Enabled())

	assert.Equal(t, time.Minute, entries[0].Interval)
}

func TestRegisterAll(t *testing.T) {
	fx := newFixture(t, &fakeAPI{}, cardinality.Limits{})
	cfg := config.NewDefaultConfig().Collectors
	cfg.LoadBalancer.HTTPInterval = time.Minute
	cfg.LoadBalancer.TCPInterval = 5 * time.Minute
	cfg.LoadBalancer.UDPInterval = 0
	cfg.DNS.Interval = 0

	r := collector.NewRegistry(fx.deps.Log)
	require.NoError(t, collector.RegisterAll(r, cfg, fx.deps))

	var names []string
	byName := map[string]collector.Entry{}
	for _, e := range r.Entries() {
		names = append(names, e.Collector.Name())
		byName[e.Collector.Name()] = e
	}
	assert.Equal(t, []string{
		collector.QuotaName, collector.SecurityName, collector.LoadBalancerName, collector.DNSName, collector.SyntheticName,
	}, names)

	assert.Equal(t, 5*time.Minute, byName[collector.LoadBalancerName].Interval)
	assert.False(t, byName[collector.DNSName].Enabled())
}

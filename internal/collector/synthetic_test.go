package collector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5xc-exporter/internal/cardinality"
	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/collector"
	"github.com/f5xc-exporter/internal/executor"
)

func TestSyntheticCollector(t *testing.T) {
	api := &fakeAPI{
		namespaces: []string{"prod", "dev"},
		synthetic: func(ns, monitorType string) (*client.SyntheticSummary, error) {
			if ns == "dev" {
				return nil, callErr(executor.KindNotFound, 404)
			}
			if monitorType == "dns" {
				return &client.SyntheticSummary{NumberOfMonitors: "2"}, nil
			}
			return &client.SyntheticSummary{NumberOfMonitors: "5", HealthyMonitorCount: "4", CriticalMonitorCount: "1"}, nil
		},
	}
	fx := newFixture(t, api, cardinality.Limits{})

	require.True(t, collector.NewSyntheticCollector(fx.deps).Run(context.Background()).Success)

	prod := map[string]string{"namespace": "prod"}
	for name, want := range map[string]float64{
		"f5xc_synthetic_http_monitors_total":    5,
		"f5xc_synthetic_http_monitors_healthy":  4,
		"f5xc_synthetic_http_monitors_critical": 1,
		"f5xc_synthetic_dns_monitors_total":     2,
		"f5xc_synthetic_dns_monitors_healthy":   0,
		"f5xc_synthetic_dns_monitors_critical":  0,
	} {
		v, ok := fx.value(t, name, prod)
		require.True(t, ok, name)
		assert.Equal(t, want, v, name)
		assert.Equal(t, 1, fx.series(t, name), name)
	}

	v, _ := fx.value(t, "f5xc_synthetic_collection_success", map[string]string{"tenant": tenant})
	assert.Equal(t, 1.0, v)
}

func TestSyntheticCollectorNamespaceListingFailure(t *testing.T) {
	api := &fakeAPI{namespacesErr: callErr(executor.KindBreakerOpen, 0)}
	fx := newFixture(t, api, cardinality.Limits{})

	out := collector.NewSyntheticCollector(fx.deps).Run(context.Background())
	assert.False(t, out.Success)
	assert.Error(t, out.Err)
	v, _ := fx.value(t, "f5xc_synthetic_collection_success", nil)
	assert.Equal(t, 0.0, v)
}

func TestSyntheticCollectorFailsWhenEverySummaryFails(t *testing.T) {
	api := &fakeAPI{
		namespaces: []string{"a", "b"},
		synthetic: func(string, string) (*client.SyntheticSummary, error) {
			return nil, errors.New("connection refused")
		},
	}
	fx := newFixture(t, api, cardinality.Limits{})

	out := collector.NewSyntheticCollector(fx.deps).Run(context.Background())
	assert.False(t, out.Success)
	assert.ErrorContains(t, out.Err, "connection refused")
	v, ok := fx.value(t, "f5xc_synthetic_collection_success", map[string]string{"tenant": tenant})
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestSyntheticCollectorWithoutMonitorsSucceeds(t *testing.T) {
	api := &fakeAPI{
		namespaces: []string{"a", "b"},
		synthetic: func(string, string) (*client.SyntheticSummary, error) {
			return nil, callErr(executor.KindNotFound, 404)
		},
	}
	fx := newFixture(t, api, cardinality.Limits{})

	out := collector.NewSyntheticCollector(fx.deps).Run(context.Background())
	assert.True(t, out.Success)
	assert.Equal(t, 0, fx.series(t, "f5xc_synthetic_http_monitors_total"))
	v, _ := fx.value(t, "f5xc_synthetic_collection_success", nil)
	assert.Equal(t, 1.0, v)
}

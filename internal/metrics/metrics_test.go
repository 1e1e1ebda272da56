package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionStatus(t *testing.T) {
	reg := NewRegistry(false)
	status := NewMetricFactory(reg).NewCollectionStatus("quota", "tenant", "namespace")

	status.Observe(true, 1.5, "acme", "system")
	assert.Equal(t, 1.0, testutil.ToFloat64(status.Success.WithLabelValues("acme", "system")))
	assert.Equal(t, 1.5, testutil.ToFloat64(status.Duration.WithLabelValues("acme", "system")))

	status.Observe(false, 0.2, "acme", "system")
	assert.Equal(t, 0.0, testutil.ToFloat64(status.Success.WithLabelValues("acme", "system")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "f5xc_quota_collection_success")
	assert.Contains(t, names, "f5xc_quota_collection_duration_seconds")
}

func TestRegistryWithRuntime(t *testing.T) {
	families, err := NewRegistry(true).Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

package collector

import (
	"context"

	"go.uber.org/zap"
)

// admittedNamespaces lists namespaces and keeps those the limiter admits for collector.
// An error means the cycle cannot proceed.
func admittedNamespaces(ctx context.Context, deps Deps, collector string, log *zap.Logger) ([]string, int, error) {
	all, err := deps.API.ListNamespaces(ctx)
	if err != nil {
		return nil, 0, err
	}
	admitted := make([]string, 0, len(all))
	for _, ns := range all {
		if !deps.Limiter.TryAdmitNamespace(collector, ns) {
			log.Warn("skipping namespace due to cardinality limit", zap.String("namespace", ns))
			continue
		}
		admitted = append(admitted, ns)
	}
	return admitted, len(all), nil
}

package collector

import (
	"github.com/f5xc-exporter/pkg/config"
)

// RegisterAll builds every collector and registers it with its configured interval.
// Disabled collectors are registered too, so their state can be reported.
func RegisterAll(r *Registry, cfg config.CollectorsConfig, deps Deps) error {
	for _, e := range []Entry{
		{Collector: NewQuotaCollector(deps, cfg.Quota.Namespaces), Interval: cfg.Quota.Interval},
		{Collector: NewSecurityCollector(deps, cfg.Security.Step), Interval: cfg.Security.Interval},
		{Collector: NewLoadBalancerCollector(deps, cfg.LoadBalancer.Step), Interval: cfg.LoadBalancer.Interval()},
		{Collector: NewDNSCollector(deps, cfg.DNS.Step), Interval: cfg.DNS.Interval},
		{Collector: NewSyntheticCollector(deps), Interval: cfg.Synthetic.Interval},
	} {
		if err := r.Register(e.Collector, e.Interval); err != nil {
			return err
		}
	}
	return nil
}

package exporter

import (
	"github.com/spf13/cobra"

	"github.com/f5xc-exporter/pkg/config"
)

var defaultCfg = config.NewDefaultConfig()

func initServerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("server.addr", defaultCfg.Server.Addr, "-> HTTP listening address")
	f.Duration("server.read-timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration")
	f.Duration("server.write-timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration")
	f.Duration("server.idle-timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration")
	f.Duration("server.shutdown-timeout", defaultCfg.Server.ShutdownTimeout, "-> Graceful shutdown timeout")
	f.Duration("server.readiness-interval", defaultCfg.Server.ReadinessInterval, "-> Interval between upstream readiness probes")
}

func initTenantFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("tenant.url", "", "-> Tenant URL, e.g. https://acme.console.ves.volterra.io")
	f.String("tenant.access-token", "", "-> API token (prefer F5XC_ACCESS_TOKEN)")
	f.String("tenant.name", "", "-> Tenant label override (default: first label of the URL host)")

	f.Duration("client.request-timeout", defaultCfg.Client.RequestTimeout, "-> Per-attempt upstream request timeout")
	f.Int("client.max-concurrent-requests", defaultCfg.Client.MaxConcurrentRequests, "-> Maximum in-flight upstream requests")
	f.Int("client.retry-max-attempts", defaultCfg.Client.RetryMaxAttempts, "-> Attempts per call, including the first")
	f.Duration("client.retry-backoff-factor", defaultCfg.Client.RetryBackoffFactor, "-> Base of the exponential retry backoff")
}

func initResilienceFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	cb := "circuit-breaker."

	f.Int(cb+"failure-threshold", defaultCfg.CircuitBreaker.FailureThreshold, "-> Consecutive failures that open an endpoint")
	f.Duration(cb+"timeout", defaultCfg.CircuitBreaker.Timeout, "-> Time an endpoint stays open before probing")
	f.Int(cb+"success-threshold", defaultCfg.CircuitBreaker.SuccessThreshold, "-> Successful probes that close an endpoint")
	f.Int(cb+"endpoint-ttl-hours", defaultCfg.CircuitBreaker.EndpointTTLHours, "-> Hours of inactivity before an endpoint is forgotten")
	f.Duration(cb+"cleanup-interval", defaultCfg.CircuitBreaker.CleanupInterval, "-> Interval of the stale endpoint sweep (0 disables)")

	f.Int("cardinality.max-namespaces", defaultCfg.Cardinality.MaxNamespaces, "-> Maximum tracked namespaces (0 = unlimited)")
	f.Int("cardinality.max-load-balancers-per-namespace", defaultCfg.Cardinality.MaxLoadBalancersPerNamespace, "-> Maximum tracked load balancers per namespace (0 = unlimited)")
	f.Int("cardinality.max-dns-zones", defaultCfg.Cardinality.MaxDNSZones, "-> Maximum tracked DNS zones (0 = unlimited)")
	f.Int("cardinality.warn-cardinality-threshold", defaultCfg.Cardinality.WarnCardinalityThreshold, "-> Warn when a metric exceeds this many series (0 = off)")
}

func initCollectorFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	c := defaultCfg.Collectors
	p := "collectors."

	f.Duration(p+"quota.interval", c.Quota.Interval, "-> Quota collection interval (0 disables)")
	f.StringSlice(p+"quota.namespaces", c.Quota.Namespaces, "-> Namespaces whose quota is collected")
	f.Duration(p+"security.interval", c.Security.Interval, "-> Security collection interval (0 disables)")
	f.Duration(p+"security.step", c.Security.Step, "-> Security query window")
	f.Duration(p+"loadbalancer.http-interval", c.LoadBalancer.HTTPInterval, "-> HTTP load balancer interval")
	f.Duration(p+"loadbalancer.tcp-interval", c.LoadBalancer.TCPInterval, "-> TCP load balancer interval")
	f.Duration(p+"loadbalancer.udp-interval", c.LoadBalancer.UDPInterval, "-> UDP load balancer interval")
	f.Duration(p+"loadbalancer.step", c.LoadBalancer.Step, "-> Service graph query window")
	f.Duration(p+"dns.interval", c.DNS.Interval, "-> DNS collection interval (0 disables)")
	f.Duration(p+"dns.step", c.DNS.Step, "-> DNS zone query window")
	f.Duration(p+"synthetic.interval", c.Synthetic.Interval, "-> Synthetic monitoring interval (0 disables)")
}

func initLogFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	logPrefix := "log."

	f.String(logPrefix+"level", defaultCfg.Log.Level, "-> Log level [debug,info,warn,error]")
	f.String(logPrefix+"format", defaultCfg.Log.Format, "-> Console log format [console,json]")
	f.String(logPrefix+"path", defaultCfg.Log.Path, "-> Directory of rotated log files (empty disables file output)")
	f.Int(logPrefix+"max-size", defaultCfg.Log.MaxSize, "-> Rotate a log file after this many MB")
	f.Int(logPrefix+"max-age", defaultCfg.Log.MaxAge, "-> Days to keep rotated log files")
	f.Duration(logPrefix+"rotation-time", defaultCfg.Log.RotationTime, "-> Interval between time-based rotations")
}

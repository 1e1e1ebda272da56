package exporter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/cardinality"
	"github.com/f5xc-exporter/internal/circuitbreaker"
	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/collector"
	"github.com/f5xc-exporter/internal/executor"
	"github.com/f5xc-exporter/internal/metrics"
	"github.com/f5xc-exporter/internal/scheduler"
	"github.com/f5xc-exporter/internal/server"
	"github.com/f5xc-exporter/pkg/config"
	"github.com/f5xc-exporter/pkg/logger"
	"github.com/f5xc-exporter/pkg/util"
)

// app is the fully wired exporter. One breaker and one limiter are shared by every collector.
type app struct {
	cfg       *config.Config
	registry  metrics.Registry
	breaker   *circuitbreaker.Breaker
	limiter   *cardinality.Limiter
	scheduler *scheduler.Scheduler
	prober    *server.Prober
}

func newApp(cfg *config.Config, withRuntime bool) (*app, error) {
	reg := metrics.NewRegistry(withRuntime)
	factory := metrics.NewMetricFactory(reg)

	breaker := circuitbreaker.New(circuitbreaker.Settings{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
	},
		circuitbreaker.WithLogger(logger.Named("circuit_breaker")),
		circuitbreaker.WithMetrics(circuitbreaker.NewMetrics(factory)),
	)

	exec := executor.New(breaker, executor.Settings{
		MaxAttempts:   cfg.Client.RetryMaxAttempts,
		BackoffFactor: cfg.Client.RetryBackoffFactor,
	}, executor.WithLogger(logger.Named("executor")))

	api, err := client.New(client.Config{
		BaseURL:               cfg.Tenant.BaseURL(),
		AccessToken:           cfg.Tenant.AccessToken,
		UserAgent:             util.UserAgent(),
		RequestTimeout:        cfg.Client.RequestTimeout,
		MaxConcurrentRequests: cfg.Client.MaxConcurrentRequests,
	}, exec, client.WithLogger(logger.Named("client")))
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	limiter, err := cardinality.New(cardinality.Limits{
		MaxNamespaces:                cfg.Cardinality.MaxNamespaces,
		MaxLoadBalancersPerNamespace: cfg.Cardinality.MaxLoadBalancersPerNamespace,
		MaxDNSZones:                  cfg.Cardinality.MaxDNSZones,
		WarnCardinalityThreshold:     cfg.Cardinality.WarnCardinalityThreshold,
	}, factory, logger.Named("cardinality"))
	if err != nil {
		return nil, fmt.Errorf("create cardinality limiter: %w", err)
	}

	collectors := collector.NewRegistry(logger.Named("registry"))
	deps := collector.Deps{
		API:     api,
		Limiter: limiter,
		Factory: factory,
		Tenant:  cfg.Tenant.TenantName(),
		Log:     logger.GetLogger(),
	}
	if err := collector.RegisterAll(collectors, cfg.Collectors, deps); err != nil {
		return nil, fmt.Errorf("register collectors: %w", err)
	}

	sched := scheduler.New(collectors, breaker, factory, scheduler.Settings{
		CleanupInterval: cfg.CircuitBreaker.CleanupInterval,
		EndpointTTL:     cfg.CircuitBreaker.EndpointTTL(),
	}, scheduler.WithLogger(logger.Named("scheduler")))

	return &app{
		cfg:       cfg,
		registry:  reg,
		breaker:   breaker,
		limiter:   limiter,
		scheduler: sched,
		prober:    server.NewProber(api, cfg.Server.ReadinessInterval, logger.Named("readiness")),
	}, nil
}

func (a *app) logStartup() {
	redacted := a.cfg.Redacted()
	logger.Info("configuration loaded", "",
		zap.String("tenant", a.cfg.Tenant.TenantName()),
		zap.String("tenant_url", redacted.Tenant.BaseURL()),
		zap.String("listen_addr", a.cfg.Server.Addr),
		zap.Any("collectors", a.cfg.Collectors.Enabled()),
		zap.Int("max_namespaces", a.cfg.Cardinality.MaxNamespaces),
		zap.Int("max_load_balancers_per_namespace", a.cfg.Cardinality.MaxLoadBalancersPerNamespace),
		zap.Int("max_dns_zones", a.cfg.Cardinality.MaxDNSZones),
		zap.Int("failure_threshold", a.cfg.CircuitBreaker.FailureThreshold),
		zap.Duration("breaker_timeout", a.cfg.CircuitBreaker.Timeout))
}

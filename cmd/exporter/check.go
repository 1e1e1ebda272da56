package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/f5xc-exporter/internal/cardinality"
	"github.com/f5xc-exporter/internal/circuitbreaker"
	"github.com/f5xc-exporter/internal/scheduler"
	"github.com/f5xc-exporter/internal/server"
	"github.com/f5xc-exporter/pkg/config"
	"github.com/f5xc-exporter/pkg/logger"
)

var errAPIUnreachable = errors.New("F5XC API is not reachable")

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the API and run every enabled collector once",
	Long:  "Runs one readiness probe and one pass of every enabled collector, then prints the outcome, breaker state and cardinality usage. Exits non-zero if the API is unreachable.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, checkTimeout)
	},
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 5*time.Minute, "-> Overall time limit for the check")
}

func runCheck(ctx context.Context, w io.Writer, cfg *config.Config, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := logger.Init(&cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ready := a.prober.Check(ctx)
	var results []scheduler.Result
	if ready.Ready {
		results = a.scheduler.RunAll(ctx)
	}

	var endpoints []circuitbreaker.Snapshot
	for _, ep := range a.breaker.Endpoints() {
		if snap, ok := a.breaker.Snapshot(ep); ok {
			endpoints = append(endpoints, snap)
		}
	}
	renderCheck(w, cfg.Tenant.TenantName(), ready, results, endpoints, a.limiter.Stats())

	if !ready.Ready {
		return errAPIUnreachable
	}
	return nil
}

func renderCheck(w io.Writer, tenant string, ready server.Readiness, results []scheduler.Result,
	endpoints []circuitbreaker.Snapshot, stats cardinality.Stats) {
	api := table.NewWriter()
	api.SetOutputMirror(w)
	api.SetStyle(table.StyleRounded)
	api.SetTitle("API")
	api.AppendHeader(table.Row{"Tenant", "Status", "Namespaces", "Checked"})
	status := "ready"
	if !ready.Ready {
		status = "not ready: " + ready.Error
	}
	api.AppendRow(table.Row{tenant, status, ready.NamespaceCount, ready.LastCheck.Format(time.RFC3339)})
	api.Render()

	if len(results) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("Collectors")
		t.AppendHeader(table.Row{"Collector", "Result", "Duration", "Error"})
		ok := 0
		for _, r := range results {
			result := "FAILED"
			if r.Outcome.Success {
				result = "OK"
				ok++
			}
			errText := ""
			if r.Outcome.Err != nil {
				errText = r.Outcome.Err.Error()
			}
			t.AppendRow(table.Row{r.Name, result, r.Outcome.Duration.Round(time.Millisecond), errText})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d ok", ok, len(results)), "", ""})
		t.Render()
	}

	if len(endpoints) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("Circuit breaker")
		t.AppendHeader(table.Row{"Endpoint", "State", "Failures"})
		for _, s := range endpoints {
			t.AppendRow(table.Row{s.Endpoint, s.State.String(), s.ConsecutiveFailures})
		}
		t.Render()
	}

	c := table.NewWriter()
	c.SetOutputMirror(w)
	c.SetStyle(table.StyleRounded)
	c.SetTitle("Cardinality")
	c.AppendHeader(table.Row{"Resource", "Tracked", "Limit"})
	c.AppendRow(table.Row{"namespaces", stats.NamespacesTracked, limitText(stats.MaxNamespaces)})
	c.AppendRow(table.Row{"load balancers", stats.LoadBalancersTracked, limitText(stats.MaxLoadBalancersPerNamespace) + " per namespace"})
	c.AppendRow(table.Row{"dns zones", stats.DNSZonesTracked, limitText(stats.MaxDNSZones)})
	rejected := 0
	for _, n := range stats.LimitsExceeded {
		rejected += n
	}
	c.AppendFooter(table.Row{"series", stats.TotalCardinality, fmt.Sprintf("%d rejected", rejected)})
	c.Render()
}

func limitText(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

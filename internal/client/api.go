package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SystemNamespace holds tenant-wide resources such as DNS zones.
const SystemNamespace = "system"

const eventTimeLayout = "2006-01-02T15:04:05.000Z"

var lbMetricTypes = []string{
	"HTTP_REQUEST_RATE",
	"HTTP_ERROR_RATE",
	"HTTP_ERROR_RATE_4XX",
	"HTTP_ERROR_RATE_5XX",
	"HTTP_RESPONSE_LATENCY",
	"HTTP_RESPONSE_LATENCY_PERCENTILE_50",
	"HTTP_RESPONSE_LATENCY_PERCENTILE_90",
	"HTTP_RESPONSE_LATENCY_PERCENTILE_99",
	"HTTP_APP_LATENCY",
	"HTTP_SERVER_DATA_TRANSFER_TIME",
	"TCP_CONNECTION_RATE",
	"TCP_ERROR_RATE",
	"TCP_ERROR_RATE_CLIENT",
	"TCP_ERROR_RATE_UPSTREAM",
	"TCP_CONNECTION_DURATION",
	"REQUEST_THROUGHPUT",
	"RESPONSE_THROUGHPUT",
	"CLIENT_RTT",
	"SERVER_RTT",
	"REQUEST_TO_ORIGIN_RATE",
}

var healthscoreTypes = []string{
	"HEALTHSCORE_OVERALL",
	"HEALTHSCORE_CONNECTIVITY",
	"HEALTHSCORE_PERFORMANCE",
	"HEALTHSCORE_SECURITY",
	"HEALTHSCORE_RELIABILITY",
}

// SecurityEventTypes are the sec_event_type values aggregated per namespace.
var SecurityEventTypes = []string{
	"waf_sec_event",
	"bot_defense_sec_event",
	"api_sec_event",
	"svc_policy_sec_event",
	"malicious_user_sec_event",
	"ddos_sec_event",
	"dos_sec_event",
}

// window returns the unix-second bounds of the last step.
func (c *Client) window(step time.Duration) (start, end string) {
	now := c.now().Unix()
	return strconv.FormatInt(now-int64(step/time.Second), 10), strconv.FormatInt(now, 10)
}

func stepString(step time.Duration) string {
	return strconv.FormatInt(int64(step/time.Second), 10) + "s"
}

// ListNamespaces returns user namespaces. Internal ves-io-* namespaces and system, which
// aggregates every other namespace, are left out.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	var resp namespaceList
	if err := c.get(ctx, "/api/web/namespaces", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Name == "" || item.Name == SystemNamespace || strings.HasPrefix(item.Name, "ves-io-") {
			continue
		}
		names = append(names, item.Name)
	}
	return names, nil
}

func (c *Client) QuotaUsage(ctx context.Context, namespace string) (*QuotaUsage, error) {
	var resp QuotaUsage
	path := fmt.Sprintf("/api/web/namespaces/%s/quota/usage", url.PathEscape(namespace))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AppFirewallMetrics returns request, attack and bot counters per virtual host.
func (c *Client) AppFirewallMetrics(ctx context.Context, namespace string, step time.Duration) ([]FirewallMetric, error) {
	start, end := c.window(step)
	payload := map[string]any{
		"namespace":      namespace,
		"field_selector": []string{"TOTAL_REQUESTS", "ATTACKED_REQUESTS", "BOT_DETECTION"},
		"group_by":       []string{"VIRTUAL_HOST"},
		"filter":         fmt.Sprintf("NAMESPACE=%q", namespace),
		"start_time":     start,
		"end_time":       end,
		"step":           stepString(step),
	}
	var resp firewallMetricsResponse
	path := fmt.Sprintf("/api/data/namespaces/%s/app_firewall/metrics", url.PathEscape(namespace))
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SecurityEventCounts aggregates security events in the namespace by event type.
func (c *Client) SecurityEventCounts(ctx context.Context, namespace string, step time.Duration) ([]EventBucket, error) {
	end := c.now().UTC()
	start := end.Add(-step)
	payload := map[string]any{
		"namespace": namespace,
		"query":     fmt.Sprintf("{sec_event_type=~%q}", strings.Join(SecurityEventTypes, "|")),
		"aggs": map[string]any{
			"by_event_type": map[string]any{
				"field_aggregation": map[string]any{"field": "SEC_EVENT_TYPE", "topk": 100},
			},
		},
		"start_time": start.Format(eventTimeLayout),
		"end_time":   end.Format(eventTimeLayout),
	}
	var resp eventAggregationResponse
	path := fmt.Sprintf("/api/data/namespaces/%s/app_security/events/aggregation", url.PathEscape(namespace))
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	return resp.Aggs.ByEventType.FieldAggregation.Buckets, nil
}

// SyntheticSummary returns monitor counts for monitorType ("http" or "dns").
// A namespace without monitors answers 404.
func (c *Client) SyntheticSummary(ctx context.Context, namespace, monitorType string) (*SyntheticSummary, error) {
	var resp SyntheticSummary
	path := fmt.Sprintf("/api/observability/synthetic_monitor/namespaces/%s/global-summary", url.PathEscape(namespace))
	if err := c.get(ctx, path, url.Values{"monitorType": {monitorType}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ServiceGraph returns HTTP, TCP and UDP load balancer nodes of one namespace with their
// metrics and health scores for both directions.
func (c *Client) ServiceGraph(ctx context.Context, namespace string, step time.Duration) ([]GraphNode, error) {
	start, end := c.window(step)
	payload := map[string]any{
		"field_selector": map[string]any{
			"node": map[string]any{
				"metric":      map[string]any{"downstream": lbMetricTypes, "upstream": lbMetricTypes},
				"healthscore": map[string]any{"downstream": healthscoreTypes, "upstream": healthscoreTypes},
			},
		},
		"step":       stepString(step),
		"start_time": start,
		"end_time":   end,
		"group_by":   []string{"VHOST", "SITE", "VIRTUAL_HOST_TYPE"},
	}
	var resp serviceGraphResponse
	path := fmt.Sprintf("/api/data/namespaces/%s/graph/service", url.PathEscape(namespace))
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	nodes := resp.Data.Nodes
	for i := range nodes {
		nodes[i].ID.Namespace = namespace
	}
	return nodes, nil
}

// DNSZoneMetrics returns query counts per DNS zone. Zones live in the system namespace.
func (c *Client) DNSZoneMetrics(ctx context.Context, step time.Duration) ([]DNSZoneMetric, error) {
	start, end := c.window(step)
	payload := map[string]any{
		"namespace":  SystemNamespace,
		"group_by":   []string{"DNS_ZONE_NAME"},
		"filter":     "",
		"start_time": start,
		"end_time":   end,
		"step":       stepString(step),
	}
	var resp dnsZoneMetricsResponse
	if err := c.post(ctx, "/api/data/namespaces/system/dns_zones/metrics", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) DNSLBHealth(ctx context.Context) ([]DNSLBHealth, error) {
	var resp dnsLBHealthResponse
	if err := c.get(ctx, "/api/data/namespaces/system/dns_load_balancers/health_status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) DNSPoolMemberHealth(ctx context.Context) ([]DNSPoolMemberHealth, error) {
	var resp dnsPoolMemberHealthResponse
	if err := c.get(ctx, "/api/data/namespaces/system/dns_load_balancers/pool_members_health_status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

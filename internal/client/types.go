package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sample value. The API sends most numbers as JSON strings.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	*v = Value(b)
	return nil
}

// Float parses the value. An empty value is an error.
func (v Value) Float() (float64, error) {
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", string(v), err)
	}
	return f, nil
}

type Sample struct {
	Value Value `json:"value"`
}

// Latest returns the last sample of a series.
func Latest(samples []Sample) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	return samples[len(samples)-1], true
}

type namespaceList struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
}

// QuotaEntry is one resource of a quota usage section. Either side may be absent.
type QuotaEntry struct {
	Limit *struct {
		Maximum *Value `json:"maximum"`
	} `json:"limit"`
	Usage *struct {
		Current *Value `json:"current"`
	} `json:"usage"`
}

// Values returns limit and current when both are present.
func (e QuotaEntry) Values() (limit, current Value, ok bool) {
	if e.Limit == nil || e.Limit.Maximum == nil || e.Usage == nil || e.Usage.Current == nil {
		return "", "", false
	}
	return *e.Limit.Maximum, *e.Usage.Current, true
}

type QuotaUsage struct {
	QuotaUsage map[string]QuotaEntry `json:"quota_usage"`
	Resources  map[string]QuotaEntry `json:"resources"`
	Objects    map[string]QuotaEntry `json:"objects"`
}

type FirewallSeries struct {
	Key   map[string]string `json:"key"`
	Value []Sample          `json:"value"`
}

type FirewallMetric struct {
	Type string           `json:"type"`
	Data []FirewallSeries `json:"data"`
}

type firewallMetricsResponse struct {
	Data []FirewallMetric `json:"data"`
}

type EventBucket struct {
	Key   string `json:"key"`
	Count Value  `json:"count"`
}

type eventAggregationResponse struct {
	Aggs struct {
		ByEventType struct {
			FieldAggregation struct {
				Buckets []EventBucket `json:"buckets"`
			} `json:"field_aggregation"`
		} `json:"by_event_type"`
	} `json:"aggs"`
}

type SyntheticSummary struct {
	NumberOfMonitors     Value `json:"number_of_monitors"`
	HealthyMonitorCount  Value `json:"healthy_monitor_count"`
	CriticalMonitorCount Value `json:"critical_monitor_count"`
}

type GraphNodeID struct {
	Vhost           string `json:"vhost"`
	Site            string `json:"site"`
	VirtualHostType string `json:"virtual_host_type"`
	// Namespace is filled in by the client; the per-namespace API omits it.
	Namespace string `json:"namespace"`
}

type GraphMetric struct {
	Type  string `json:"type"`
	Value struct {
		Raw []Sample `json:"raw"`
	} `json:"value"`
}

type GraphDirections struct {
	Downstream []GraphMetric `json:"downstream"`
	Upstream   []GraphMetric `json:"upstream"`
}

type GraphNode struct {
	ID   GraphNodeID `json:"id"`
	Data struct {
		Metric      GraphDirections `json:"metric"`
		Healthscore GraphDirections `json:"healthscore"`
	} `json:"data"`
}

type serviceGraphResponse struct {
	Data struct {
		Nodes []GraphNode `json:"nodes"`
	} `json:"data"`
}

type DNSZoneMetric struct {
	Labels map[string]string `json:"labels"`
	Value  []Sample          `json:"value"`
}

type dnsZoneMetricsResponse struct {
	Data []DNSZoneMetric `json:"data"`
}

type DNSLBHealth struct {
	Name         string `json:"name"`
	HealthStatus string `json:"health_status"`
}

type DNSPoolMemberHealth struct {
	DNSLBName     string `json:"dns_lb_name"`
	PoolName      string `json:"pool_name"`
	MemberAddress string `json:"member_address"`
	HealthStatus  string `json:"health_status"`
}

type dnsLBHealthResponse struct {
	Items []DNSLBHealth `json:"items"`
}

type dnsPoolMemberHealthResponse struct {
	Items []DNSPoolMemberHealth `json:"items"`
}

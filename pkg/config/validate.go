package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validate checks that the listen address resolves.
func (h *ServerConfig) Validate() error {
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected :port or ip:port), got %s: %w", h.Addr, err)
	}
	if h.ReadinessInterval < time.Second {
		return fmt.Errorf("server.readiness_interval must be at least 1s, got %s", h.ReadinessInterval)
	}
	return nil
}

// Validate requires an absolute http(s) tenant URL.
func (t *TenantConfig) Validate() error {
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("tenant.url invalid: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("tenant.url must use http or https, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("tenant.url has no host: %s", t.URL)
	}
	if strings.TrimSpace(t.AccessToken) == "" {
		return errors.New("tenant.access_token cannot be blank")
	}
	return nil
}

// Validate requires at least one enabled collector, otherwise the exporter has nothing to do.
func (c *CollectorsConfig) Validate() error {
	if c.Quota.Interval <= 0 && c.Security.Interval <= 0 && c.LoadBalancer.Interval() <= 0 &&
		c.DNS.Interval <= 0 && c.Synthetic.Interval <= 0 {
		return errors.New("at least one collector must be enabled (quota/security/loadbalancer/dns/synthetic)")
	}

	if c.Quota.Interval > 0 {
		if len(c.Quota.Namespaces) == 0 {
			return errors.New("collectors.quota.namespaces cannot be empty while quota is enabled")
		}
		seen := map[string]bool{}
		for _, ns := range c.Quota.Namespaces {
			if strings.TrimSpace(ns) == "" {
				return errors.New("collectors.quota.namespaces cannot contain empty string")
			}
			if seen[ns] {
				return fmt.Errorf("collectors.quota.namespaces contains duplicate namespace: %s", ns)
			}
			seen[ns] = true
		}
	}
	return nil
}

// Enabled reports each collector's state keyed by collector name.
func (c *CollectorsConfig) Enabled() map[string]bool {
	return map[string]bool{
		"quota":        c.Quota.Interval > 0,
		"security":     c.Security.Interval > 0,
		"loadbalancer": c.LoadBalancer.Interval() > 0,
		"dns":          c.DNS.Interval > 0,
		"synthetic":    c.Synthetic.Interval > 0,
	}
}

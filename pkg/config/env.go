package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the generic environment mapping: F5XC_CLIENT_REQUEST_TIMEOUT -> client.request_timeout.
const EnvPrefix = "F5XC"

// legacyEnv keeps the variable names documented for container deployments.
// Interval variables are plain integers in seconds.
var legacyEnv = map[string]string{
	"tenant.url":                                   "F5XC_TENANT_URL",
	"tenant.access_token":                          "F5XC_ACCESS_TOKEN",
	"tenant.name":                                  "F5XC_TENANT_NAME",
	"server.port":                                  "F5XC_EXP_HTTP_PORT",
	"log.level":                                    "F5XC_EXP_LOG_LEVEL",
	"client.request_timeout":                       "F5XC_REQUEST_TIMEOUT",
	"client.max_concurrent_requests":               "F5XC_MAX_CONCURRENT_REQUESTS",
	"client.retry_max_attempts":                    "F5XC_RETRY_MAX_ATTEMPTS",
	"circuit_breaker.failure_threshold":            "F5XC_CIRCUIT_BREAKER_FAILURE_THRESHOLD",
	"circuit_breaker.timeout":                      "F5XC_CIRCUIT_BREAKER_TIMEOUT",
	"circuit_breaker.success_threshold":            "F5XC_CIRCUIT_BREAKER_SUCCESS_THRESHOLD",
	"circuit_breaker.endpoint_ttl_hours":           "F5XC_CIRCUIT_BREAKER_ENDPOINT_TTL_HOURS",
	"circuit_breaker.cleanup_interval":             "F5XC_CIRCUIT_BREAKER_CLEANUP_INTERVAL",
	"cardinality.max_namespaces":                   "F5XC_MAX_NAMESPACES",
	"cardinality.max_load_balancers_per_namespace": "F5XC_MAX_LOAD_BALANCERS_PER_NAMESPACE",
	"cardinality.max_dns_zones":                    "F5XC_MAX_DNS_ZONES",
	"cardinality.warn_cardinality_threshold":       "F5XC_WARN_CARDINALITY_THRESHOLD",
	"collectors.quota.interval":                    "F5XC_QUOTA_INTERVAL",
	"collectors.quota.namespaces":                  "F5XC_QUOTA_NAMESPACES",
	"collectors.security.interval":                 "F5XC_SECURITY_INTERVAL",
	"collectors.loadbalancer.http_interval":        "F5XC_HTTP_LB_INTERVAL",
	"collectors.loadbalancer.tcp_interval":         "F5XC_TCP_LB_INTERVAL",
	"collectors.loadbalancer.udp_interval":         "F5XC_UDP_LB_INTERVAL",
	"collectors.dns.interval":                      "F5XC_DNS_INTERVAL",
	"collectors.synthetic.interval":                "F5XC_SYNTHETIC_INTERVAL",
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

// secondsOrDurationHook accepts "90s"/"2m" style strings as well as bare numbers, which are read as seconds.
func secondsOrDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if s == "" {
				return time.Duration(0), nil
			}
			if secs, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
			return time.ParseDuration(s)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		}
		return data, nil
	}
}

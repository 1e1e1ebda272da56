package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config aggregates every section of the exporter configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Tenant         TenantConfig         `yaml:"tenant" mapstructure:"tenant"`
	Client         ClientConfig         `yaml:"client" mapstructure:"client"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Cardinality    CardinalityConfig    `yaml:"cardinality" mapstructure:"cardinality"`
	Collectors     CollectorsConfig     `yaml:"collectors" mapstructure:"collectors"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// ServerConfig controls the local HTTP listener serving /metrics, /health and /ready.
type ServerConfig struct {
	Addr              string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gt=0"`
	ReadinessInterval time.Duration `yaml:"readiness_interval" mapstructure:"readiness_interval" validate:"gt=0"`
}

// TenantConfig identifies the F5XC tenant and its API credential.
type TenantConfig struct {
	URL         string `yaml:"url" mapstructure:"url" validate:"required,url"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token" validate:"required"`
	// Name overrides the tenant label; derived from URL when empty.
	Name string `yaml:"name" mapstructure:"name"`
}

// ClientConfig tunes the upstream API client.
type ClientConfig struct {
	RequestTimeout        time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"gt=0"`
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests" validate:"gte=1,lte=100"`
	RetryMaxAttempts      int           `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts" validate:"gte=1,lte=10"`
	RetryBackoffFactor    time.Duration `yaml:"retry_backoff_factor" mapstructure:"retry_backoff_factor" validate:"gte=0"`
}

// CircuitBreakerConfig configures the per-endpoint breaker and its stale-entry sweep.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=1"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold" validate:"gte=1"`
	EndpointTTLHours int           `yaml:"endpoint_ttl_hours" mapstructure:"endpoint_ttl_hours" validate:"gte=1"`
	// CleanupInterval of 0 disables the sweep.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"gte=0"`
}

// EndpointTTL is how long an endpoint may go untouched before the sweep drops it.
func (c CircuitBreakerConfig) EndpointTTL() time.Duration {
	return time.Duration(c.EndpointTTLHours) * time.Hour
}

// CardinalityConfig bounds the label space. A zero limit means unlimited.
type CardinalityConfig struct {
	MaxNamespaces                int `yaml:"max_namespaces" mapstructure:"max_namespaces" validate:"gte=0"`
	MaxLoadBalancersPerNamespace int `yaml:"max_load_balancers_per_namespace" mapstructure:"max_load_balancers_per_namespace" validate:"gte=0"`
	MaxDNSZones                  int `yaml:"max_dns_zones" mapstructure:"max_dns_zones" validate:"gte=0"`
	WarnCardinalityThreshold     int `yaml:"warn_cardinality_threshold" mapstructure:"warn_cardinality_threshold" validate:"gte=0"`
}

// CollectorsConfig holds one section per collector. An interval <= 0 disables the collector.
type CollectorsConfig struct {
	Quota        QuotaConfig        `yaml:"quota" mapstructure:"quota"`
	Security     SecurityConfig     `yaml:"security" mapstructure:"security"`
	LoadBalancer LoadBalancerConfig `yaml:"loadbalancer" mapstructure:"loadbalancer"`
	DNS          DNSConfig          `yaml:"dns" mapstructure:"dns"`
	Synthetic    SyntheticConfig    `yaml:"synthetic" mapstructure:"synthetic"`
}

type QuotaConfig struct {
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
	Namespaces []string      `yaml:"namespaces" mapstructure:"namespaces"`
}

type SecurityConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Step     time.Duration `yaml:"step" mapstructure:"step" validate:"gt=0"`
}

// LoadBalancerConfig keeps separate HTTP/TCP/UDP intervals; one unified collector runs at the largest.
type LoadBalancerConfig struct {
	HTTPInterval time.Duration `yaml:"http_interval" mapstructure:"http_interval"`
	TCPInterval  time.Duration `yaml:"tcp_interval" mapstructure:"tcp_interval"`
	UDPInterval  time.Duration `yaml:"udp_interval" mapstructure:"udp_interval"`
	Step         time.Duration `yaml:"step" mapstructure:"step" validate:"gt=0"`
}

// Interval returns the effective schedule of the unified load balancer collector.
func (c LoadBalancerConfig) Interval() time.Duration {
	return max(c.HTTPInterval, c.TCPInterval, c.UDPInterval)
}

type DNSConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Step     time.Duration `yaml:"step" mapstructure:"step" validate:"gt=0"`
}

type SyntheticConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// LogConfig configures console and rotating file output.
type LogConfig struct {
	Level        string        `yaml:"level" mapstructure:"level" validate:"required"`
	Format       string        `yaml:"format" mapstructure:"format" validate:"required,oneof=json console"`
	Path         string        `yaml:"path" mapstructure:"path"`
	MaxSize      int           `yaml:"max_size" mapstructure:"max_size" validate:"gt=0"`
	MaxAge       int           `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
	RotationTime time.Duration `yaml:"rotation_time" mapstructure:"rotation_time" validate:"gt=0"`
}

// NewDefaultConfig returns a configuration with every field populated.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "0.0.0.0:8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			ReadinessInterval: 30 * time.Second,
		},
		Client: ClientConfig{
			RequestTimeout:        30 * time.Second,
			MaxConcurrentRequests: 5,
			RetryMaxAttempts:      3,
			RetryBackoffFactor:    time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
			SuccessThreshold: 2,
			EndpointTTLHours: 24,
			CleanupInterval:  6 * time.Hour,
		},
		Cardinality: CardinalityConfig{
			MaxNamespaces:                100,
			MaxLoadBalancersPerNamespace: 50,
			MaxDNSZones:                  100,
			WarnCardinalityThreshold:     10000,
		},
		Collectors: CollectorsConfig{
			Quota: QuotaConfig{
				Interval:   600 * time.Second,
				Namespaces: []string{"system"},
			},
			Security: SecurityConfig{
				Interval: 120 * time.Second,
				Step:     300 * time.Second,
			},
			LoadBalancer: LoadBalancerConfig{
				HTTPInterval: 120 * time.Second,
				TCPInterval:  120 * time.Second,
				UDPInterval:  120 * time.Second,
				Step:         120 * time.Second,
			},
			DNS: DNSConfig{
				Interval: 120 * time.Second,
				Step:     300 * time.Second,
			},
			Synthetic: SyntheticConfig{
				Interval: 120 * time.Second,
			},
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "console",
			Path:         "./logs",
			MaxSize:      100,
			MaxAge:       7,
			RotationTime: 24 * time.Hour,
		},
	}
}

// LoadConfigWithCli resolves configuration from flags, an optional YAML file and the
// environment (precedence: changed flags, env, file, flag defaults).
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(flagKey(f.Name), f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// Load resolves configuration without a command line, from an optional file and the environment.
func Load(configFile string) (*Config, error) {
	return load(viper.New(), configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsOrDurationHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if port := v.GetString("server.port"); port != "" {
		host, _, splitErr := net.SplitHostPort(cfg.Server.Addr)
		if splitErr != nil {
			host = ""
		}
		cfg.Server.Addr = net.JoinHostPort(host, port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// flagKey maps "circuit-breaker.failure-threshold" onto "circuit_breaker.failure_threshold".
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Validate runs the struct tags and then every section's own checks.
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Tenant.Validate(); err != nil {
		return err
	}
	if err := c.Collectors.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

// TenantName returns the configured name or the first label of the tenant URL host, lowercased.
// https://acme.console.ves.volterra.io -> acme
func (t TenantConfig) TenantName() string {
	if t.Name != "" {
		return t.Name
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(strings.SplitN(u.Hostname(), ".", 2)[0])
}

// BaseURL is the tenant URL without a trailing slash.
func (t TenantConfig) BaseURL() string {
	return strings.TrimRight(t.URL, "/")
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.Tenant.AccessToken != "" {
		c.Tenant.AccessToken = "***"
	}
	return c
}

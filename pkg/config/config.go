package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TLSConfig represents the listener TLS configuration
type TLSConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Cert    string `json:"cert" mapstructure:"cert"`
	Key     string `json:"key" mapstructure:"key"`
}

// MirrorConfig represents the public side of the mirror
type MirrorConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	// RedirectURI is where callers without a valid share token are sent
	RedirectURI string `json:"redirect_uri" mapstructure:"redirect_uri"`
	// Proxy is an optional egress proxy URL for upstream requests
	Proxy string    `json:"proxy" mapstructure:"proxy"`
	TLS   TLSConfig `json:"tls" mapstructure:"tls"`
}

// UpstreamConfig represents the mirrored application
type UpstreamConfig struct {
	PrimaryHost string `json:"primary_host" mapstructure:"primary_host"`
	ABHost      string `json:"ab_host" mapstructure:"ab_host"`
	AssetHost   string `json:"asset_host" mapstructure:"asset_host"`
	// StreamPaths are relayed as they arrive instead of being buffered
	StreamPaths []string `json:"stream_paths" mapstructure:"stream_paths"`
	// PublicExtensions are forwarded without a credential
	PublicExtensions []string `json:"public_extensions" mapstructure:"public_extensions"`
	// BlockedExtensions are refused with 405 and never forwarded
	BlockedExtensions []string `json:"blocked_extensions" mapstructure:"blocked_extensions"`
	// CheckURL is the account status endpoint used by /api/check
	CheckURL              string        `json:"check_url" mapstructure:"check_url"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout" mapstructure:"response_header_timeout"`
}

// RedisConfig represents the registry backend. An empty host selects the
// in-memory registry.
type RedisConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// Addr returns the host:port of the redis server
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// RedactionConfig represents the placeholders shown instead of account details
type RedactionConfig struct {
	Name        string `json:"name" mapstructure:"name"`
	Email       string `json:"email" mapstructure:"email"`
	LockedTitle string `json:"locked_title" mapstructure:"locked_title"`
}

// MetricsConfig represents the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// Config represents the mirror configuration
type Config struct {
	Mirror    MirrorConfig    `json:"mirror" mapstructure:"mirror"`
	Upstream  UpstreamConfig  `json:"upstream" mapstructure:"upstream"`
	Redis     RedisConfig     `json:"redis" mapstructure:"redis"`
	Redaction RedactionConfig `json:"redaction" mapstructure:"redaction"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// LoadConfig loads configuration from a file and the environment.
// An empty filename loads from defaults and the environment only.
func LoadConfig(filename string) (*Config, error) {
	v := newViper()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	var config Config
	if err := newViper().Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return &config
}

// Validate checks the configuration for values the mirror cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Mirror.Port <= 0 || c.Mirror.Port > 65535 {
		errs = append(errs, fmt.Errorf("mirror.port out of range: %d", c.Mirror.Port))
	}
	if c.Upstream.PrimaryHost == "" || c.Upstream.ABHost == "" || c.Upstream.AssetHost == "" {
		errs = append(errs, errors.New("upstream hosts must not be empty"))
	}
	if c.Mirror.TLS.Enabled && (c.Mirror.TLS.Cert == "" || c.Mirror.TLS.Key == "") {
		errs = append(errs, errors.New("mirror.tls requires cert and key"))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment names used by existing deployments
	_ = v.BindEnv("redis.host", "MIRROR_REDIS_HOST", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "MIRROR_REDIS_PORT", "REDIS_PORT")
	_ = v.BindEnv("mirror.proxy", "MIRROR_MIRROR_PROXY", "PROXY")

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mirror.host", "0.0.0.0")
	v.SetDefault("mirror.port", 8080)
	v.SetDefault("mirror.redirect_uri", "/")
	v.SetDefault("mirror.proxy", "")
	v.SetDefault("mirror.tls.enabled", false)
	v.SetDefault("mirror.tls.cert", "")
	v.SetDefault("mirror.tls.key", "")

	v.SetDefault("upstream.primary_host", "chatgpt.com")
	v.SetDefault("upstream.ab_host", "ab.chatgpt.com")
	v.SetDefault("upstream.asset_host", "cdn.oaistatic.com")
	v.SetDefault("upstream.stream_paths", []string{"/backend-api/conversation"})
	v.SetDefault("upstream.public_extensions", []string{".js", ".css", ".webp"})
	v.SetDefault("upstream.blocked_extensions", []string{".map", ".woff2"})
	v.SetDefault("upstream.check_url", "https://chatgpt.com/backend-api/accounts/check/v4-2023-04-27?timezone_offset_min=-480")
	v.SetDefault("upstream.response_header_timeout", 2*time.Minute)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("redaction.name", "Sam Altman")
	v.SetDefault("redaction.email", "sam@openai.com")
	v.SetDefault("redaction.locked_title", "🔒")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "chatgpt_mirror")
}

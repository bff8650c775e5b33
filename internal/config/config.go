// Package config loads process configuration from the environment and an
// optional YAML file. Values are read once at startup and treated as immutable.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix       = "HORIZON"
	defaultHTTPAddr = ":5000"
)

// ErrMissingTokenSecret is returned when no signing key is configured.
var ErrMissingTokenSecret = errors.New("config: HORIZON_TOKEN_SECRET is required")

// Config holds the settings of the API process.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`

	// Empty DatabaseURL selects the in-memory store.
	DatabaseURL  string        `mapstructure:"database_url"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	// Empty RedisURL disables the shared product cache tier.
	RedisURL      string        `mapstructure:"redis_url"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheCapacity int           `mapstructure:"cache_capacity"`

	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`

	PaymentSecretKey string        `mapstructure:"payment_secret_key"`
	PaymentAPIURL    string        `mapstructure:"payment_api_url"`
	PaymentCurrency  string        `mapstructure:"payment_currency"`
	PaymentTimeout   time.Duration `mapstructure:"payment_timeout"`

	RateBurst    int      `mapstructure:"rate_burst"`
	RatePerSec   int      `mapstructure:"rate_per_sec"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes"`
	CORSOrigins  []string `mapstructure:"cors_origins"`

	// Reverse proxies whose X-Forwarded-For is trusted. Empty keys clients on the socket peer.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	LogLevel      string `mapstructure:"log_level"`
	StatsSchedule string `mapstructure:"stats_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("database_url", "")
	v.SetDefault("store_timeout", 5*time.Second)
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("cache_capacity", 1024)
	v.SetDefault("token_secret", "")
	v.SetDefault("token_ttl", 10*time.Hour)
	v.SetDefault("payment_secret_key", "")
	v.SetDefault("payment_api_url", "https://api.stripe.com")
	v.SetDefault("payment_currency", "usd")
	v.SetDefault("payment_timeout", 10*time.Second)
	v.SetDefault("rate_burst", 60)
	v.SetDefault("rate_per_sec", 20)
	v.SetDefault("max_body_bytes", int64(1<<20))
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("stats_schedule", "@every 1m")
}

// Load reads configuration. When path is non-empty the YAML file is read first
// and HORIZON_* environment variables override it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is honoured for platforms that inject it.
	_ = v.BindEnv("port", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
		if port := strings.TrimSpace(v.GetString("port")); port != "" {
			cfg.HTTPAddr = ":" + port
		}
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)
	cfg.PaymentCurrency = strings.ToLower(strings.TrimSpace(cfg.PaymentCurrency))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TokenSecret) == "" {
		return ErrMissingTokenSecret
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("config: store_timeout must be positive, got %s", c.StoreTimeout)
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("config: payment_timeout must be positive, got %s", c.PaymentTimeout)
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return errors.New("config: rate_burst and rate_per_sec must be positive")
	}
	return nil
}

// env values arrive as a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

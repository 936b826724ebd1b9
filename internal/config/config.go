package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
	StoreMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	TelegramToken  string `env:"TELEGRAM_TOKEN,notEmpty"`
	DatabaseURL    string `env:"DATABASE_URL"`
	StoreDriver    string `env:"STORE_DRIVER" envDefault:"postgres"`
	BadgerPath     string `env:"BADGER_PATH" envDefault:"data/badger"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	PrometheusPort string `env:"PROMETHEUS_PORT" envDefault:"9090"`
	WebhookURL     string `env:"WEBHOOK_URL"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	Port           string `env:"PORT" envDefault:"8080"`
	DashboardURL   string `env:"DASHBOARD_URL,notEmpty"`

	S3Bucket   string        `env:"S3_BUCKET_NAME,notEmpty"`
	S3Region   string        `env:"S3_REGION"`
	S3Endpoint string        `env:"S3_ENDPOINT"`
	S3URLTTL   time.Duration `env:"S3_URL_TTL" envDefault:"168h"`

	ActivationRateLimit float64 `env:"ACTIVATION_RATE_LIMIT" envDefault:"1"`
	ActivationRateBurst int     `env:"ACTIVATION_RATE_BURST" envDefault:"5"`

	// TrustedProxies lists the proxy addresses or CIDRs allowed to set
	// X-Forwarded-For on activation requests
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Load loads configuration from the environment, reading .env first when
// present
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is required for the postgres store")
		}
	case StoreBadger:
		if c.BadgerPath == "" {
			return errors.New("BADGER_PATH environment variable is required for the badger store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	dashboard, err := url.Parse(c.DashboardURL)
	if err != nil || dashboard.Scheme == "" || dashboard.Host == "" {
		return fmt.Errorf("DASHBOARD_URL must be an absolute URL, got %q", c.DashboardURL)
	}

	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET environment variable is required when WEBHOOK_URL is set")
	}

	if c.ActivationRateLimit <= 0 || c.ActivationRateBurst <= 0 {
		return errors.New("ACTIVATION_RATE_LIMIT and ACTIVATION_RATE_BURST must be positive")
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address is a single
// host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

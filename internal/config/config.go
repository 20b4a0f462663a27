package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Session   SessionConfig   `yaml:"session"`
	Rates     RatesConfig     `yaml:"rates"`
	Database  DatabaseConfig  `yaml:"database"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SiteConfig identifies the deals site being watched.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// WatcherConfig holds the poll loop and profit threshold settings.
// Monetary values are in the settlement currency (PLN).
type WatcherConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Lookback        time.Duration `yaml:"lookback"`
	MinPrice        float64       `yaml:"min_price"`
	MinProfit       float64       `yaml:"min_profit"`
	SoundProfit     float64       `yaml:"sound_profit"`
	AllowedDRMs     []string      `yaml:"allowed_drms"`
	Concurrency     int           `yaml:"concurrency"`
}

// SessionConfig holds browser bootstrap settings.
// RefreshAfterAuthFailures is the number of consecutive authorization
// failures on keyshop fetches before the session is re-bootstrapped;
// zero disables mid-run refresh.
type SessionConfig struct {
	Headless                 bool          `yaml:"headless"`
	BootstrapTimeout         time.Duration `yaml:"bootstrap_timeout"`
	RefreshAfterAuthFailures int           `yaml:"refresh_after_auth_failures"`
}

// RatesConfig holds the exchange rate endpoints and cache settings.
type RatesConfig struct {
	EURToUSDURL string        `yaml:"eur_to_usd_url"`
	USDToPLNURL string        `yaml:"usd_to_pln_url"`
	CacheFile   string        `yaml:"cache_file"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// DatabaseConfig holds listing store settings. Driver is "sqlite"
// (default, Path) or "postgres" (Host/Port/...).
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// NotifyConfig holds outbound notification settings. An empty WebhookURL
// disables chat notifications; an empty SoundFile disables sound alerts.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	SoundFile  string `yaml:"sound_file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// Load reads a YAML configuration file from the given path. A .env file in
// the working directory is loaded first so that secrets can be supplied via
// the environment: DEALWATCH_WEBHOOK_URL and DEALWATCH_DB_PASSWORD override
// their file counterparts.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Site: SiteConfig{
			BaseURL: "https://gg.deals",
		},
		Watcher: WatcherConfig{
			RefreshInterval: 30 * time.Second,
			Lookback:        42 * time.Minute,
			Concurrency:     4,
		},
		Session: SessionConfig{
			Headless:         true,
			BootstrapTimeout: 60 * time.Second,
		},
		Rates: RatesConfig{
			CacheFile: "exchange_rates.json",
			CacheTTL:  24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "dealwatch.db",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "dealwatch",
			ServiceVersion: "0.1.0",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if v := os.Getenv("DEALWATCH_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("DEALWATCH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlite\" or \"postgres\"", c.Database.Driver)
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must not be empty")
	}
	if c.Watcher.RefreshInterval <= 0 {
		return fmt.Errorf("watcher.refresh_interval must be positive, got %s", c.Watcher.RefreshInterval)
	}
	if c.Watcher.Concurrency <= 0 {
		return fmt.Errorf("watcher.concurrency must be positive, got %d", c.Watcher.Concurrency)
	}
	if c.Rates.EURToUSDURL == "" || c.Rates.USDToPLNURL == "" {
		return fmt.Errorf("rates.eur_to_usd_url and rates.usd_to_pln_url must be set")
	}
	if c.Rates.CacheTTL <= 0 {
		return fmt.Errorf("rates.cache_ttl must be positive, got %s", c.Rates.CacheTTL)
	}
	return nil
}

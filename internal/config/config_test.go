package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjaros/dealwatch/internal/config"
)

const minimalRates = `
rates:
  eur_to_usd_url: "https://rates.example/eur"
  usd_to_pln_url: "https://rates.example/usd"
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
site:
  base_url: "https://gg.deals"
watcher:
  refresh_interval: 45s
  lookback: 1h
  min_price: 10.0
  min_profit: 1.5
  sound_profit: 5.0
  allowed_drms: ["Steam", "Battle.net"]
  concurrency: 8
session:
  headless: true
  refresh_after_auth_failures: 3
rates:
  eur_to_usd_url: "https://rates.example/eur"
  usd_to_pln_url: "https://rates.example/usd"
  cache_file: "/tmp/rates.json"
  cache_ttl: 12h
database:
  driver: "postgres"
  host: "db.example.com"
  port: 5433
  user: "dealwatch"
  password: "secret"
  dbname: "deals"
  sslmode: "require"
notify:
  webhook_url: "https://discord.com/api/webhooks/1/abc"
  sound_file: "alert.mp3"
server:
  port: 9090
telemetry:
  service_name: "my-watcher"
  otlp_endpoint: "localhost:4318"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Watcher.RefreshInterval != 45*time.Second {
					t.Errorf("got refresh interval %s, want 45s", cfg.Watcher.RefreshInterval)
				}
				if cfg.Watcher.MinProfit != 1.5 {
					t.Errorf("got min profit %v, want 1.5", cfg.Watcher.MinProfit)
				}
				if len(cfg.Watcher.AllowedDRMs) != 2 {
					t.Errorf("got %d allowed DRMs, want 2", len(cfg.Watcher.AllowedDRMs))
				}
				if cfg.Session.RefreshAfterAuthFailures != 3 {
					t.Errorf("got refresh threshold %d, want 3", cfg.Session.RefreshAfterAuthFailures)
				}
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Rates.CacheTTL != 12*time.Hour {
					t.Errorf("got cache TTL %s, want 12h", cfg.Rates.CacheTTL)
				}
				if cfg.Telemetry.ServiceName != "my-watcher" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "my-watcher")
				}
			},
		},
		{
			name:    "defaults applied",
			yaml:    minimalRates,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Site.BaseURL != "https://gg.deals" {
					t.Errorf("got base URL %q, want %q", cfg.Site.BaseURL, "https://gg.deals")
				}
				if cfg.Watcher.RefreshInterval != 30*time.Second {
					t.Errorf("got refresh interval %s, want 30s", cfg.Watcher.RefreshInterval)
				}
				if cfg.Watcher.Lookback != 42*time.Minute {
					t.Errorf("got lookback %s, want 42m", cfg.Watcher.Lookback)
				}
				if cfg.Watcher.Concurrency != 4 {
					t.Errorf("got concurrency %d, want 4", cfg.Watcher.Concurrency)
				}
				if cfg.Database.Driver != "sqlite" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "sqlite")
				}
				if cfg.Server.Port != 8080 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 8080)
				}
				if cfg.Telemetry.ServiceName != "dealwatch" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "dealwatch")
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "invalid driver rejected",
			yaml: minimalRates + `
database:
  driver: "mysql"
`,
			wantErr: true,
		},
		{
			name: "missing rate endpoints rejected",
			yaml: `
watcher:
  refresh_interval: 30s
`,
			wantErr: true,
		},
		{
			name: "non-positive refresh interval rejected",
			yaml: minimalRates + `
watcher:
  refresh_interval: 0s
`,
			wantErr: true,
		},
		{
			name: "non-positive concurrency rejected",
			yaml: minimalRates + `
watcher:
  concurrency: -1
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEALWATCH_WEBHOOK_URL", "https://discord.com/api/webhooks/9/xyz")
	t.Setenv("DEALWATCH_DB_PASSWORD", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := minimalRates + `
notify:
  webhook_url: "https://discord.com/api/webhooks/1/file"
database:
  password: "from-file"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Notify.WebhookURL != "https://discord.com/api/webhooks/9/xyz" {
		t.Errorf("got webhook %q, want env override", cfg.Notify.WebhookURL)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("got password %q, want env override", cfg.Database.Password)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Dedup.Cooldown != 24*time.Hour {
		t.Errorf("cooldown = %v, want 24h", cfg.Dedup.Cooldown)
	}
	if cfg.Rules.SignificantChangePercent != 15 || cfg.Rules.WeightEpsilon != 0.5 {
		t.Errorf("unexpected rule defaults %+v", cfg.Rules)
	}
	if !cfg.Dispatch.Enabled || cfg.Dispatch.PerSecond != 20 {
		t.Errorf("unexpected dispatch defaults %+v", cfg.Dispatch)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Sinks.Primary != SinkStore {
		t.Errorf("unexpected storage/sink defaults %+v %+v", cfg.Storage, cfg.Sinks)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("PAWWATCH_TEST_DSN", "postgres://pw@db/pawwatch")
	path := filepath.Join(t.TempDir(), "pawwatch.yaml")
	data := `
server:
  http_address: ":8181"
storage:
  driver: postgres
  dsn: ${PAWWATCH_TEST_DSN}
dedup:
  driver: redis
  cooldown: 12h
  redis:
    addr: localhost:6379
rules:
  significant_change_percent: 10
  critical_change_percent: 20
dispatch:
  enabled: false
sinks:
  webhook:
    url: https://hooks.example.com/pawwatch
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8181" {
		t.Errorf("http address = %q", cfg.Server.HTTPAddress)
	}
	if cfg.Storage.DSN != "postgres://pw@db/pawwatch" {
		t.Errorf("dsn not expanded: %q", cfg.Storage.DSN)
	}
	if cfg.Dedup.Cooldown != 12*time.Hour || cfg.Dedup.Redis.TTL != 24*time.Hour {
		t.Errorf("cooldown %v ttl %v", cfg.Dedup.Cooldown, cfg.Dedup.Redis.TTL)
	}
	if cfg.Rules.SignificantChangePercent != 10 || cfg.Rules.HistoryLimit != 10 {
		t.Errorf("rules not merged onto defaults: %+v", cfg.Rules)
	}
	if cfg.Dispatch.Enabled {
		t.Error("expected explicit dispatch.enabled false to stick")
	}
	if cfg.Sinks.Webhook == nil || cfg.Sinks.Primary != SinkStore {
		t.Errorf("unexpected sinks %+v", cfg.Sinks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.dsn"},
		{"memory driver", func(c *Config) { c.Storage.Driver = DriverMemory }, ""},
		{"redis without addr", func(c *Config) { c.Dedup.Driver = DedupRedis }, "dedup.redis.addr"},
		{"redis ttl below cooldown", func(c *Config) {
			c.Dedup.Driver = DedupRedis
			c.Dedup.Redis.Addr = "localhost:6379"
			c.Dedup.Redis.TTL = time.Hour
		}, "dedup.redis.ttl"},
		{"watch without file", func(c *Config) { c.Thresholds.Watch = true }, "thresholds.file"},
		{"critical below significant", func(c *Config) { c.Rules.CriticalChangePercent = 10 }, "critical_change_percent"},
		{"webhook primary missing", func(c *Config) { c.Sinks.Primary = SinkWebhook }, "sinks.webhook"},
		{"unknown sink", func(c *Config) { c.Sinks.Primary = "sms" }, "sinks.primary"},
		{"zero rate", func(c *Config) { c.Dispatch.PerSecond = 0 }, "dispatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

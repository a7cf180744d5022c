// Package config loads the pawwatch configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
)

// Config represents the pawwatch configuration.
type Config struct {
	Server     ServerConfig             `yaml:"server"`
	Metrics    MetricsConfig            `yaml:"metrics"`
	Logging    logger.Config            `yaml:"logging"`
	Storage    StorageConfig            `yaml:"storage"`
	Dedup      DedupConfig              `yaml:"dedup"`
	Thresholds ThresholdsConfig         `yaml:"thresholds"`
	Rules      alerting.RuleOptions     `yaml:"rules"`
	Sinks      SinksConfig              `yaml:"sinks"`
	Dispatch   notifier.RateLimitConfig `yaml:"dispatch"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"http_address"` // default :8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// HookTimeout bounds one pipeline run triggered by a hook.
	HookTimeout time.Duration `yaml:"hook_timeout"`
	// HookRatePerMinute limits hook calls per client IP; 0 disables it.
	HookRatePerMinute int `yaml:"hook_rate_per_minute"`
}

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // default :9090
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StorageConfig selects and configures the relational store.
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite
	DSN      string `yaml:"dsn"`  // postgres
	MaxConns int    `yaml:"max_conns"`
	// Retention prunes notifications and cooldown markers older than this.
	// Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// Dedup drivers.
const (
	DedupStore = "store"
	DedupRedis = "redis"
)

// DedupConfig configures the cooldown.
type DedupConfig struct {
	Driver   string        `yaml:"driver"`
	Cooldown time.Duration `yaml:"cooldown"`
	Redis    RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the shared cooldown store.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ThresholdsConfig points at an optional thresholds file.
type ThresholdsConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// Sink names.
const (
	SinkStore   = "store"
	SinkWebhook = "webhook"
	SinkKafka   = "kafka"
)

// SinksConfig selects the primary sink and configures the optional mirrors.
type SinksConfig struct {
	Primary string                  `yaml:"primary"`
	Webhook *notifier.WebhookConfig `yaml:"webhook"`
	Kafka   *notifier.KafkaConfig   `yaml:"kafka"`
}

// Load reads, expands environment variables in, defaults and validates a
// YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	// Fields where zero is a meaningful value start from their defaults.
	cfg := Config{
		Rules:    alerting.DefaultRuleOptions(),
		Dispatch: notifier.DefaultRateLimitConfig(),
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with default values.
func Default() *Config {
	cfg := &Config{
		Rules:    alerting.DefaultRuleOptions(),
		Dispatch: notifier.DefaultRateLimitConfig(),
	}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.HookTimeout == 0 {
		c.Server.HookTimeout = 15 * time.Second
	}
	if c.Server.HookRatePerMinute < 0 {
		c.Server.HookRatePerMinute = 0
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = "./data/pawwatch.db"
	}
	if c.Dedup.Driver == "" {
		c.Dedup.Driver = DedupStore
	}
	if c.Dedup.Cooldown == 0 {
		c.Dedup.Cooldown = alerting.DefaultCooldown
	}
	if c.Dedup.Redis.TTL == 0 {
		c.Dedup.Redis.TTL = 2 * c.Dedup.Cooldown
	}
	c.Rules = c.Rules.WithDefaults()
	if c.Sinks.Primary == "" {
		c.Sinks.Primary = SinkStore
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q must be sqlite, postgres or memory", c.Storage.Driver)
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}

	switch c.Dedup.Driver {
	case DedupStore:
	case DedupRedis:
		if c.Dedup.Redis.Addr == "" {
			return fmt.Errorf("dedup.redis.addr is required for the redis driver")
		}
		if c.Dedup.Redis.TTL < c.Dedup.Cooldown {
			return fmt.Errorf("dedup.redis.ttl (%s) must be at least dedup.cooldown (%s)", c.Dedup.Redis.TTL, c.Dedup.Cooldown)
		}
	default:
		return fmt.Errorf("dedup.driver %q must be store or redis", c.Dedup.Driver)
	}
	if c.Dedup.Cooldown < 0 {
		return fmt.Errorf("dedup.cooldown must not be negative")
	}

	if c.Thresholds.Watch && c.Thresholds.File == "" {
		return fmt.Errorf("thresholds.file is required when thresholds.watch is set")
	}

	if c.Rules.CriticalChangePercent < c.Rules.SignificantChangePercent {
		return fmt.Errorf("rules.critical_change_percent must not be below rules.significant_change_percent")
	}

	switch c.Sinks.Primary {
	case SinkStore:
	case SinkWebhook:
		if c.Sinks.Webhook == nil {
			return fmt.Errorf("sinks.webhook is required when it is the primary sink")
		}
	case SinkKafka:
		if c.Sinks.Kafka == nil {
			return fmt.Errorf("sinks.kafka is required when it is the primary sink")
		}
	default:
		return fmt.Errorf("sinks.primary %q must be store, webhook or kafka", c.Sinks.Primary)
	}
	if c.Sinks.Webhook != nil {
		if err := c.Sinks.Webhook.Validate(); err != nil {
			return fmt.Errorf("sinks.webhook: %w", err)
		}
	}
	if c.Sinks.Kafka != nil {
		if err := c.Sinks.Kafka.Validate(); err != nil {
			return fmt.Errorf("sinks.kafka: %w", err)
		}
	}

	if c.Dispatch.Enabled && (c.Dispatch.PerSecond <= 0 || c.Dispatch.Burst <= 0) {
		return fmt.Errorf("dispatch.per_second and dispatch.burst must be positive when enabled")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"mockupreview/pkg/config"
)

// StoreConfig 评审存储选择
type StoreConfig struct {
	// postgres / memory
	Driver string `yaml:"driver"`
	// 事务内等待行锁的上限（毫秒）
	LockTimeoutMillis int `yaml:"lock_timeout_ms"`
}

// OutboxConfig outbox Dispatcher 配置
type OutboxConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMillis  int  `yaml:"interval_ms"`
	BatchSize       int  `yaml:"batch_size"`
	MaxRetries      int  `yaml:"max_retries"`
	ReplayBatchSize int  `yaml:"replay_batch_size"`
}

// NotificationConfig worker 投递配置
type NotificationConfig struct {
	// log / webhook
	Channel               string `yaml:"channel"`
	WebhookURL            string `yaml:"webhook_url"`
	WebhookTimeoutSeconds int    `yaml:"webhook_timeout_seconds"`
	RetryMax              int    `yaml:"retry_max"`
	DedupTTLMinutes       int    `yaml:"dedup_ttl_minutes"`
	QueuePrefix           string `yaml:"queue_prefix"`
	BreakerFailures       int    `yaml:"breaker_failures"`
	BreakerTimeoutSeconds int    `yaml:"breaker_timeout_seconds"`
}

type Config struct {
	DB           config.DBConfig     `yaml:"db"`
	MQ           config.MQConfig     `yaml:"mq"`
	Redis        config.RedisConfig  `yaml:"redis"`
	JWT          config.JWTConfig    `yaml:"jwt"`
	Server       config.ServerConfig `yaml:"server"`
	Otel         config.OtelConfig   `yaml:"otel"`
	Store        StoreConfig         `yaml:"store"`
	Outbox       OutboxConfig        `yaml:"outbox"`
	Notification NotificationConfig  `yaml:"notification"`
	LogLevel     string              `yaml:"log_level"`
}

// Load 使用统一配置中心加载：base.yaml + <CONFIG_ENV>.yaml + secrets.env + 环境变量
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config (env=%s, dir=%s): %w", env, configDir, err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOtelFromEnv(&cfg.Otel)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Notification.Channel == "" {
		c.Notification.Channel = "log"
	}
	if c.Notification.QueuePrefix == "" {
		c.Notification.QueuePrefix = "notify"
	}
	if c.Outbox.ReplayBatchSize <= 0 {
		c.Outbox.ReplayBatchSize = 100
	}
	if c.JWT.TTLHours <= 0 {
		c.JWT.TTLHours = 24
	}
}

// Validate 检查启动所需的必填项
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Notification.Channel {
	case "log":
	case "webhook":
		if c.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required for the webhook channel")
		}
	default:
		return fmt.Errorf("unknown notification.channel %q", c.Notification.Channel)
	}
	if c.JWT.Secret == "" || strings.HasPrefix(c.JWT.Secret, "${") {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}

func (c *Config) OutboxInterval() time.Duration {
	return time.Duration(c.Outbox.IntervalMillis) * time.Millisecond
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Store.LockTimeoutMillis) * time.Millisecond
}

func (c *Config) DedupTTL() time.Duration {
	if c.Notification.DedupTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Notification.DedupTTLMinutes) * time.Minute
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Notification.WebhookTimeoutSeconds) * time.Second
}

func (c *Config) BreakerTimeout() time.Duration {
	if c.Notification.BreakerTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Notification.BreakerTimeoutSeconds) * time.Second
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWT.TTLHours) * time.Hour
}

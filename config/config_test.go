package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.JWT.Secret = "s3cret"
	cfg.applyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "log", cfg.Notification.Channel)
	assert.Equal(t, "notify", cfg.Notification.QueuePrefix)
	assert.Equal(t, 24*time.Hour, cfg.DedupTTL())
	assert.Equal(t, 30*time.Second, cfg.BreakerTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"unknown channel", func(c *Config) { c.Notification.Channel = "sms" }},
		{"webhook without url", func(c *Config) { c.Notification.Channel = "webhook" }},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }},
		{"unresolved secret", func(c *Config) { c.JWT.Secret = "${JWT_SECRET}" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Outbox.IntervalMillis = 250
	cfg.Store.LockTimeoutMillis = 1500
	cfg.Notification.WebhookTimeoutSeconds = 3

	assert.Equal(t, 250*time.Millisecond, cfg.OutboxInterval())
	assert.Equal(t, 1500*time.Millisecond, cfg.LockTimeout())
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout())
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL())
}

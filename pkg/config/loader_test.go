package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

type testConfig struct {
	DB     DBConfig  `yaml:"db"`
	JWT    JWTConfig `yaml:"jwt"`
	Outbox struct {
		BatchSize int  `yaml:"batch_size"`
		Enabled   bool `yaml:"enabled"`
	} `yaml:"outbox"`
}

func TestDecode_MergesEnvironmentFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  name: review
jwt:
  secret: ${JWT_SECRET}
outbox:
  batch_size: 100
  enabled: true
`)
	writeFile(t, dir, "staging.yaml", `
db:
  host: db.staging
`)
	writeFile(t, dir, "secrets.env", "# local secrets\nJWT_SECRET=from-secrets-file\n")

	var cfg testConfig
	require.NoError(t, Decode("staging", dir, &cfg))
	assert.Equal(t, "db.staging", cfg.DB.Host)
	assert.Equal(t, "review", cfg.DB.Name)
	assert.Equal(t, "from-secrets-file", cfg.JWT.Secret)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
}

func TestDecode_SystemEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
outbox:
  batch_size: 100
  enabled: true
jwt:
  secret: ${REVIEW_TEST_SECRET}
`)
	t.Setenv(EnvPrefix+"OUTBOX__BATCH_SIZE", "25")
	t.Setenv(EnvPrefix+"OUTBOX__ENABLED", "false")
	t.Setenv("REVIEW_TEST_SECRET", "from-env")

	var cfg testConfig
	require.NoError(t, Decode("local", dir, &cfg))
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.False(t, cfg.Outbox.Enabled)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestDecode_KeepsUnresolvedPlaceholder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${REVIEW_TEST_MISSING_SECRET}\n")

	var cfg testConfig
	require.NoError(t, Decode("", dir, &cfg))
	assert.Equal(t, "${REVIEW_TEST_MISSING_SECRET}", cfg.JWT.Secret)
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

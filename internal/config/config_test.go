package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "showtimes", cfg.Cache.KeyPrefix)
	assert.Equal(t, time.Minute, cfg.ResyncInterval())
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[cache]
key_prefix = "nao"
distributed_lock = true

[resync]
interval_seconds = 30
backoff_base_seconds = 0
alert_after = 3

[alerts]
recipients = [" ops@example.com ", ""]

[smtp]
host = "smtp.example.com"

[logging]
level = " DEBUG "
format = "console"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "nao", cfg.Cache.KeyPrefix)
	assert.True(t, cfg.Cache.DistributedLock)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval())
	assert.Equal(t, time.Duration(0), cfg.BackoffBase())
	assert.Equal(t, 3, cfg.Resync.AlertAfter)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Alerts.Recipients)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// 未出现的字段保留默认值
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.Cache.KeyPrefix = "" }},
		{"glob prefix", func(c *Config) { c.Cache.KeyPrefix = "show*" }},
		{"zero interval", func(c *Config) { c.Resync.IntervalSeconds = 0 }},
		{"backoff max below base", func(c *Config) { c.Resync.BackoffMaxSeconds = 1 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{"alerts without smtp", func(c *Config) { c.Alerts.Recipients = []string{"a@b"} }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestSampleConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, CreateSample(path))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "showtimes", cfg.Cache.KeyPrefix)
	assert.Error(t, cfg.RequireAPI())
}

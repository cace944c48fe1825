package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.True(t, cfg.Database.Enabled)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_ENABLED", "false")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CATALOG_FILE", "/etc/survey/catalog.yaml")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "/etc/survey/catalog.yaml", cfg.Catalog.File)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("CLEANUP_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.Interval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Enabled: true, DSN: "postgres://x"},
			Redis:    RedisConfig{Enabled: true, Address: "localhost:6379"},
			Session:  SessionConfig{TTL: time.Hour},
			Cleanup:  CleanupConfig{Interval: time.Minute},
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"missing redis address", func(c *Config) { c.Redis.Address = "" }},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"zero cleanup interval", func(c *Config) { c.Cleanup.Interval = 0 }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	disabled := valid()
	disabled.Database = DatabaseConfig{Enabled: false}
	disabled.Redis = RedisConfig{Enabled: false}
	assert.NoError(t, disabled.Validate())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "precache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sample = `
origin: https://example.com
generation: cache-v3
assets:
  - /
  - /static/styles.css?v=3
  - /manifest.webmanifest
timeout: 5s
provider: sqlite
sqlite:
  path: /var/lib/precache.db
`

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.Origin)
	assert.Equal(t, "cache-v3", cfg.Generation)
	assert.Equal(t, []string{"/", "/static/styles.css?v=3", "/manifest.webmanifest"}, cfg.Assets)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "sqlite", cfg.Provider)
	assert.Equal(t, "/var/lib/precache.db", cfg.SQLite.Path)
	// untouched defaults survive
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "proto", cfg.Codec)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PRECACHE_GENERATION", "cache-v4")
	t.Setenv("PRECACHE_ASSETS", "/,/about")
	t.Setenv("PRECACHE_PROVIDER", "redis")
	t.Setenv("PRECACHE_REDIS_ADDR", "redis:6379")
	t.Setenv("PRECACHE_REDIS_DB", "2")
	t.Setenv("PRECACHE_WAIT_FOR_CLIENTS", "true")
	t.Setenv("PRECACHE_CLIENT_IDLE_TIMEOUT", "10m")
	t.Setenv("PRECACHE_MAX_CLIENTS", "500")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "cache-v4", cfg.Generation)
	assert.Equal(t, []string{"/", "/about"}, cfg.Assets)
	assert.Equal(t, "redis", cfg.Provider)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.WaitForClients)
	assert.Equal(t, 10*time.Minute, cfg.ClientIdleTimeout)
	assert.Equal(t, 500, cfg.MaxClients)
	assert.Equal(t, "https://example.com", cfg.Origin)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "assets: [unterminated"))
	assert.Error(t, err)

	t.Setenv("PRECACHE_INSTALL_CONCURRENCY", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no generation", func(c *Config) { c.Generation = "" }, "generation is required"},
		{"no assets", func(c *Config) { c.Assets = nil }, "at least one asset"},
		{"relative origin", func(c *Config) { c.Origin = "/site" }, "absolute URL"},
		{"bad provider", func(c *Config) { c.Provider = "memcached" }, "unknown provider"},
		{"bad codec", func(c *Config) { c.Codec = "gob" }, "unknown codec"},
		{"bad logger", func(c *Config) { c.Logger = "glog" }, "unknown logger"},
		{"negative max clients", func(c *Config) { c.MaxClients = -1 }, "maxClients"},
		{"ristretto without cost", func(c *Config) {
			c.Provider = "ristretto"
			c.Ristretto.MaxCost = 0
		}, "maxCost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Origin = "https://example.com"
			cfg.Generation = "cache-v3"
			cfg.Assets = []string{"/"}
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOriginURL(t *testing.T) {
	u, err := Config{}.OriginURL()
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = Config{Origin: "https://example.com/app/"}.OriginURL()
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvBackend, EnvSQLDriver, EnvSQLDSN, EnvAPIURL, EnvAPIKey, EnvRateLimit,
		EnvCacheCapacity, EnvEvictionInterval, EnvLogLevel, EnvLogFormat,
		EnvEnvironment, EnvSessionFile, EnvConfigFile,
	} {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults when no env vars set", func(t *testing.T) {
		clearEnvVars(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Backend)
		assert.Equal(t, 1000, cfg.Cache.Capacity)
		assert.Equal(t, 30*time.Second, cfg.Cache.EvictionInterval.Duration)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
	})

	t.Run("loads config from environment variables", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv(EnvBackend, "SQL")
		t.Setenv(EnvSQLDriver, DriverPostgres)
		t.Setenv(EnvSQLDSN, "postgres://localhost/recipes?sslmode=disable")
		t.Setenv(EnvCacheCapacity, "250")
		t.Setenv(EnvEvictionInterval, "1m")
		t.Setenv(EnvLogLevel, "debug")
		t.Setenv(EnvLogFormat, "json")
		t.Setenv(EnvSessionFile, "/tmp/session")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, BackendSQL, cfg.Backend)
		assert.Equal(t, DriverPostgres, cfg.SQL.Driver)
		assert.Equal(t, 250, cfg.Cache.Capacity)
		assert.Equal(t, time.Minute, cfg.Cache.EvictionInterval.Duration)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "/tmp/session", cfg.SessionFile)
	})

	t.Run("returns error for invalid capacity", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv(EnvCacheCapacity, "lots")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), EnvCacheCapacity)
	})

	t.Run("postgrest backend requires url and key", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv(EnvBackend, BackendPostgREST)

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "URL")

		t.Setenv(EnvAPIURL, "https://recipes.example.com")
		t.Setenv(EnvAPIKey, "anon-key")
		t.Setenv(EnvRateLimit, "2.5")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 2.5, cfg.API.RateLimit)
	})

	t.Run("unknown backend is rejected", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv(EnvBackend, "firebase")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "recipes.toml")
	content := `
backend = "sql"

[sql]
driver = "sqlite3"
dsn = "file::memory:"
seed = true

[cache]
capacity = 42
eviction_interval = "10s"

[log]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQL, cfg.Backend)
	assert.True(t, cfg.SQL.Seed)
	assert.Equal(t, 42, cfg.Cache.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Cache.EvictionInterval.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Cache.SessionTTL.Duration, "keys absent from the file keep their defaults")
	assert.Equal(t, "error", cfg.Log.Level, "environment wins over the file")
}

func TestLoad_BadFile(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = "), 0o600))
	t.Setenv(EnvConfigFile, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Mappings(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Capacity = 12
	cfg.Log.Format = "json"

	cc := cfg.CacheConfig()
	assert.Equal(t, 12, cc.Capacity)
	assert.Equal(t, 10*time.Minute, cc.ReadThrough.TTL)
	require.NoError(t, cc.Validate())

	lc := cfg.LoggerConfig("1.2.3")
	assert.True(t, lc.IsJSON())
	assert.Equal(t, "1.2.3", lc.Version)
	assert.Equal(t, "go-recipe-query", lc.ServiceName)
}

func TestGetEnv(t *testing.T) {
	os.Unsetenv("RECIPES_TEST_VAR")
	assert.Equal(t, "fallback", getEnv("RECIPES_TEST_VAR", "fallback"))

	t.Setenv("RECIPES_TEST_VAR", "")
	assert.Equal(t, "", getEnv("RECIPES_TEST_VAR", "fallback"), "set but empty is still set")
}

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Addr)
	assert.Equal(t, "http://ip-api.com", cfg.IPAPIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Empty(t, cfg.CachePath)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes())
	assert.Equal(t, int64(50_000_000), cfg.MaxPixels())
	assert.False(t, cfg.Serve)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	env := envMap(map[string]string{
		"LISTEN_ADDR":    ":9000",
		"LOOKUP_TIMEOUT": "3s",
		"CACHE_DB":       "data/env.db",
		"MAX_UPLOAD_MB":  "5",
		"MAX_MEGAPIXELS": "12",
	})
	cfg, err := loadConfig([]string{"-serve", "-addr", ":9100", "-cache-db", "data/flag.db"}, env)
	require.NoError(t, err)

	assert.True(t, cfg.Serve)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "data/flag.db", cfg.CachePath)
	assert.Equal(t, 3*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 5, cfg.MaxUploadMB)
	assert.Equal(t, int64(12_000_000), cfg.MaxPixels())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(nil, envMap(map[string]string{"LOOKUP_TIMEOUT": "soon"}))
	assert.Error(t, err)

	_, err = loadConfig(nil, envMap(map[string]string{"MAX_UPLOAD_MB": "lots"}))
	assert.Error(t, err)

	_, err = loadConfig([]string{"-max-upload-mb", "0"}, envMap(nil))
	assert.Error(t, err)

	_, err = loadConfig([]string{"-max-megapixels", "0"}, envMap(nil))
	assert.Error(t, err)

	_, err = loadConfig(nil, envMap(map[string]string{"MAX_MEGAPIXELS": "many"}))
	assert.Error(t, err)

	_, err = loadConfig([]string{"-no-such-flag"}, envMap(nil))
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging(Config{LogLevel: "debug", LogFormat: "json"}))
	assert.NoError(t, setupLogging(Config{LogLevel: "info", LogFormat: "text"}))
	assert.Error(t, setupLogging(Config{LogLevel: "loud"}))
	assert.Error(t, setupLogging(Config{LogLevel: "info", LogFormat: "xml"}))
}

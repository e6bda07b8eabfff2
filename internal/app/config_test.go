package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, SessionBackendFile, cfg.SessionBackend)
	assert.Equal(t, "/dashboard", cfg.FallbackPath)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("API_BASE_URL", "http://api.local/api")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, SessionBackendRedis, cfg.SessionBackend)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, "http://api.local/api", cfg.APIBaseURL)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "sqlite")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "unknown session backend")

	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("FALLBACK_PATH", "dashboard")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "must be absolute")

	t.Setenv("FALLBACK_PATH", "/dashboard")
	t.Setenv("SESSION_TTL", "forever")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestSessionFile(t *testing.T) {
	cfg := &Config{SessionDir: "/var/lib/onsync", SessionNamespace: "desk"}
	assert.Equal(t, filepath.Join("/var/lib/onsync", "session-desk.json"), cfg.SessionFile())
}

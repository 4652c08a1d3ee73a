package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, k := range []string{"APP_ENV", "STORE_BACKEND", "LIVE_REFRESH", "SLOT_POLICY", "RATE_LIMIT_PER_MIN"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, time.Minute, cfg.LiveRefresh)
	assert.Equal(t, "going", cfg.SlotPolicy)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Empty(t, cfg.Warnings)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("LIVE_REFRESH", "30s")
	t.Setenv("RATE_LIMIT_PER_MIN", "oops")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.LiveRefresh)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "RATE_LIMIT_PER_MIN")
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_BACKEND", "etcd")
	t.Setenv("SLOT_POLICY", "maybe")
	t.Setenv("VENUE_TZ", "Mars/Olympus")

	cfg := Load()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "SLOT_POLICY")
	assert.Contains(t, err.Error(), "VENUE_TZ")
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestValidateRejectsDevKeyInProduction(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SIGNING_KEY", "")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	cfg.Env = "Production"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY must be set in production")

	cfg.JWTSigningKey = "a-real-secret"
	assert.NoError(t, cfg.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

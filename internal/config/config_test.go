package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GATE_ADDR", "UPSTREAM_URL", "LOG_LEVEL", "AUTH_JWT_SECRET",
		"STATS_REDIS_ADDR", "RATE_LIMIT_WINDOW", "RATE_LIMIT_MAX"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DefaultWindowSeconds, cfg.Limits.WindowSeconds)
	assert.Equal(t, DefaultMaxRequests, cfg.Limits.MaxRequests)
	assert.Equal(t, []string{"/api"}, cfg.Routes.API)
	assert.Equal(t, "/login", cfg.Routes.LoginPath)
	assert.Equal(t, "/chat", cfg.Routes.LandingPath)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout())
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBody())
	assert.Equal(t, 24*time.Hour, cfg.Stats.TTL())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  read_timeout_ms: 1500
limits:
  window_seconds: 60
  max_requests: 100
auth:
  keys:
    - user_id: svc
      secret: abc
routes:
  protected: ["/dashboard"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 1500*time.Millisecond, cfg.Server.ReadTimeout())
	assert.Equal(t, 60, cfg.Limits.WindowSeconds)
	assert.Equal(t, 100, cfg.Limits.MaxRequests)
	assert.Equal(t, []string{"/dashboard"}, cfg.Routes.Protected)
	require.Len(t, cfg.Auth.Keys, 1)
	assert.Equal(t, "svc", cfg.Auth.Keys[0].UserID)

	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("GATE_ADDR", ":9100")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Limits.WindowSeconds)
	assert.Equal(t, 5, cfg.Limits.MaxRequests)
	assert.Equal(t, ":9100", cfg.Server.Addr)
}

func TestLoad_InvalidRateEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)

	for _, v := range []string{"abc", "0", "-4", "1.5"} {
		t.Setenv("RATE_LIMIT_WINDOW", v)
		t.Setenv("RATE_LIMIT_MAX", v)

		cfg, err := Load("")
		require.NoError(t, err, v)
		assert.Equal(t, DefaultWindowSeconds, cfg.Limits.WindowSeconds, v)
		assert.Equal(t, DefaultMaxRequests, cfg.Limits.MaxRequests, v)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse yaml")
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("HW_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("HW_PHOTO_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
redis:
  addr: ${HW_REDIS_ADDR}
scoring:
  policy: unfloored
photos:
  signing_secret: ${HW_PHOTO_SECRET}
retry:
  attempts: 5
  delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "unfloored", cfg.Scoring.Policy)
	assert.Equal(t, "s3cret", cfg.Photos.SigningSecret)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "leaderboard", cfg.Store.KeyPrefix)
	assert.Equal(t, int64(5<<20), cfg.Photos.MaxSize)
	assert.Equal(t, "http://localhost:9090", cfg.Photos.PublicBaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, "floored", cfg.Scoring.Policy)
	assert.Equal(t, 365*24*time.Hour, cfg.Photos.URLTTL)
	assert.True(t, cfg.Sync.Enabled)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "bogus"}.SlogLevel())
}

func TestEnsureSigningSecret(t *testing.T) {
	cfg := DefaultConfig()
	require.Empty(t, cfg.Photos.SigningSecret)

	assert.True(t, cfg.Photos.EnsureSigningSecret())
	assert.Len(t, cfg.Photos.SigningSecret, 64)

	generated := cfg.Photos.SigningSecret
	assert.False(t, cfg.Photos.EnsureSigningSecret())
	assert.Equal(t, generated, cfg.Photos.SigningSecret)

	other := DefaultConfig()
	other.Photos.EnsureSigningSecret()
	assert.NotEqual(t, generated, other.Photos.SigningSecret)

	explicit := PhotosConfig{SigningSecret: "s3cret"}
	assert.False(t, explicit.EnsureSigningSecret())
	assert.Equal(t, "s3cret", explicit.SigningSecret)
}

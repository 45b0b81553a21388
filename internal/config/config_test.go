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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 5000
  env: production
database:
  url: postgres://file
jwt:
  secret: from-file
payments:
  currency: KES
  provider_timeout: 3s
  mpesa:
    consumer_key: key
    consumer_secret: secret
    short_code: "174379"
    passkey: pass
sweep:
  enabled: true
  interval: 30s
  stale_after: 1m
  expire_after: 10m
  batch_size: 10
  workers: 2
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("SERVER_PORT", "6000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.DSN, "env overrides file")
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 3*time.Second, cfg.Payments.ProviderTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.True(t, cfg.Payments.Mpesa.Configured())
	assert.False(t, cfg.Payments.Stripe.Configured())
	// значения по умолчанию, которых нет в файле
	assert.Equal(t, 5, cfg.Auth.LoginMaxAttempts)
}

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENTS_DISABLE_DEMO", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "KES", cfg.Payments.Currency)
	assert.True(t, cfg.Payments.DisableDemo)
	assert.Equal(t, 8*time.Second, cfg.Payments.ProviderTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "secret")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
		t.Setenv("DATABASE_URL", "postgres://env")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("SERVER_PORT", "not-a-port")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_CORSAndStorageFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", "https://shop.example.com, ,https://admin.example.com")
	t.Setenv("STORAGE_TYPE", "cloudflare_r2")
	t.Setenv("R2_ENDPOINT", "https://acc.r2.cloudflarestorage.com")
	t.Setenv("R2_BUCKET", "receipts")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "cloudflare_r2", cfg.Storage.Type)
	assert.Equal(t, "receipts", cfg.Storage.Bucket)

	t.Setenv("R2_BUCKET", "")
	cfg.Storage.Bucket = ""
	assert.Error(t, cfg.Validate(), "r2 без bucket")
}

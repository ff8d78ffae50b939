package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.CleanupInterval)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.ItemDelay)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CACHE_MAX_SIZE", "50")
	t.Setenv("SYNC_MAX_RETRIES", "5")
	t.Setenv("REGISTRY_ANON_KEY", "anon")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Cache.MaxSize)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, "anon", cfg.Backend.AnonKey)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("REGISTRY_BACKEND_URL=https://registry.example\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("REGISTRY_BACKEND_URL") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "https://registry.example", cfg.Backend.URL)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")

	_, err := Load("", "")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Database.Driver", cfgErr.Field)
}

func TestRequireServer(t *testing.T) {
	cfg := &Config{Backend: Backend{URL: "https://registry.example", AnonKey: "anon"}}

	err := cfg.RequireServer()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))

	cfg.Backend.ServiceRoleKey = "service"
	assert.NoError(t, cfg.RequireServer())
}

func TestBackendFor(t *testing.T) {
	b := Backend{AnonKey: "anon", ServiceRoleKey: "service"}

	key, err := b.For(LevelAnon)
	require.NoError(t, err)
	assert.Equal(t, "anon", key)

	key, err = b.For(LevelService)
	require.NoError(t, err)
	assert.Equal(t, "service", key)

	_, err = b.For("root")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestSigningSecretFallsBackToServiceRole(t *testing.T) {
	assert.Equal(t, "service", Backend{ServiceRoleKey: "service"}.SigningSecret())
	assert.Equal(t, "jwt", Backend{ServiceRoleKey: "service", JWTSecret: "jwt"}.SigningSecret())
}

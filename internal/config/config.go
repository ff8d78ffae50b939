// Package config loads registry configuration from defaults, an optional YAML
// file, an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-barangay-registry/internal/logging"
)

// CredentialLevel selects which backend credential a call site uses.
type CredentialLevel string

const (
	// LevelAnon is the public credential safe to ship to clients.
	LevelAnon CredentialLevel = "anon"
	// LevelService is the privileged service-role credential for server-side paths.
	LevelService CredentialLevel = "service_role"
)

// ErrMissingCredential is returned when a requested credential level is not configured.
var ErrMissingCredential = errors.New("config: missing credential")

type (
	// Config is the root registry configuration.
	Config struct {
		App      App            `yaml:"app"`
		Backend  Backend        `yaml:"backend"`
		Database Database       `yaml:"database"`
		Cache    Cache          `yaml:"cache"`
		Audit    Audit          `yaml:"audit"`
		Sync     Sync           `yaml:"sync"`
		Log      logging.Config `yaml:"log"`
	}

	// App identifies the running process.
	App struct {
		Name    string `yaml:"name" env:"REGISTRY_APP_NAME" env-default:"barangay-registry"`
		Version string `yaml:"version" env:"REGISTRY_APP_VERSION" env-default:"dev"`
	}

	// Backend holds the hosted API location and its two credential levels.
	Backend struct {
		URL            string `yaml:"url" env:"REGISTRY_BACKEND_URL"`
		AnonKey        string `yaml:"anon_key" env:"REGISTRY_ANON_KEY"`
		ServiceRoleKey string `yaml:"service_role_key" env:"REGISTRY_SERVICE_ROLE_KEY"`
		JWTSecret      string `yaml:"jwt_secret" env:"REGISTRY_JWT_SECRET"`
	}

	// Database configures the bun connection.
	Database struct {
		Driver       string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite"`
		URL          string `yaml:"url" env:"DATABASE_URL" env-default:"file:registry.db?cache=shared&_fk=1"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS" env-default:"10"`
		Debug        bool   `yaml:"debug" env:"DATABASE_DEBUG"`
	}

	// Cache configures the process-local cache.
	Cache struct {
		MaxSize         int           `yaml:"max_size" env:"CACHE_MAX_SIZE" env-default:"1000"`
		DefaultTTL      time.Duration `yaml:"default_ttl" env:"CACHE_DEFAULT_TTL" env-default:"5m"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CACHE_CLEANUP_INTERVAL" env-default:"10m"`
		KeyPrefix       string        `yaml:"key_prefix" env:"CACHE_KEY_PREFIX" env-default:"rbi:"`
		ReferenceTTL    time.Duration `yaml:"reference_ttl" env:"CACHE_REFERENCE_TTL" env-default:"1h"`
	}

	// Audit configures the audit emitter.
	Audit struct {
		Enabled    bool `yaml:"enabled" env:"AUDIT_ENABLED" env-default:"true"`
		BufferSize int  `yaml:"buffer_size" env:"AUDIT_BUFFER_SIZE" env-default:"256"`
	}

	// Sync configures the offline sync queue.
	Sync struct {
		QueuePath      string        `yaml:"queue_path" env:"SYNC_QUEUE_PATH" env-default:"./data/sync-queue"`
		MaxRetries     int           `yaml:"max_retries" env:"SYNC_MAX_RETRIES" env-default:"3"`
		ItemDelay      time.Duration `yaml:"item_delay" env:"SYNC_ITEM_DELAY" env-default:"1s"`
		RequestTimeout time.Duration `yaml:"request_timeout" env:"SYNC_REQUEST_TIMEOUT" env-default:"15s"`
		HealthInterval time.Duration `yaml:"health_interval" env:"SYNC_HEALTH_INTERVAL" env-default:"30s"`
		HealthPath     string        `yaml:"health_path" env:"SYNC_HEALTH_PATH" env-default:"/health"`
		TokenTTL       time.Duration `yaml:"token_ttl" env:"SYNC_TOKEN_TTL" env-default:"15m"`
		Subject        string        `yaml:"subject" env:"SYNC_SUBJECT" env-default:"registry-sync"`
	}
)

// Load reads configuration. path and envFile are optional; a missing envFile is ignored.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		return cfg, cfg.Validate()
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return &ConfigError{Field: "Database.Driver", Message: "must be postgres or sqlite"}
	}
	if c.Database.URL == "" {
		return &ConfigError{Field: "Database.URL", Message: "must not be empty"}
	}
	if c.Cache.MaxSize <= 0 {
		return &ConfigError{Field: "Cache.MaxSize", Message: "must be greater than 0"}
	}
	if c.Cache.DefaultTTL <= 0 {
		return &ConfigError{Field: "Cache.DefaultTTL", Message: "must be greater than 0"}
	}
	if c.Sync.MaxRetries < 0 {
		return &ConfigError{Field: "Sync.MaxRetries", Message: "must be non-negative"}
	}
	if c.Sync.ItemDelay < 0 {
		return &ConfigError{Field: "Sync.ItemDelay", Message: "must be non-negative"}
	}
	return nil
}

// RequireServer verifies everything a server-side path needs. Callers treat the
// returned error as fatal at startup.
func (c *Config) RequireServer() error {
	if c.Backend.URL == "" {
		return &ConfigError{Field: "Backend.URL", Message: "REGISTRY_BACKEND_URL is required"}
	}
	if _, err := c.Backend.For(LevelAnon); err != nil {
		return err
	}
	if _, err := c.Backend.For(LevelService); err != nil {
		return err
	}
	return nil
}

// For returns the credential for level.
func (b Backend) For(level CredentialLevel) (string, error) {
	var key string
	switch level {
	case LevelAnon:
		key = b.AnonKey
	case LevelService:
		key = b.ServiceRoleKey
	default:
		return "", fmt.Errorf("%w: unknown level %q", ErrMissingCredential, level)
	}
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredential, level)
	}
	return key, nil
}

// SigningSecret returns the secret used to mint sync bearer tokens, falling back
// to the service-role key.
func (b Backend) SigningSecret() string {
	if b.JWTSecret != "" {
		return b.JWTSecret
	}
	return b.ServiceRoleKey
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

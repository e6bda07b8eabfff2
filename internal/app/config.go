package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Session backends.
const (
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	APIBaseURL string        `envconfig:"API_BASE_URL" default:"https://backend.onsync-test.xyz/api"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"10s"`

	SessionBackend   string        `envconfig:"SESSION_BACKEND" default:"file"`
	SessionDir       string        `envconfig:"SESSION_DIR"`
	SessionNamespace string        `envconfig:"SESSION_NAMESPACE" default:"default"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	CatalogPath  string `envconfig:"CATALOG_PATH"`
	FallbackPath string `envconfig:"FALLBACK_PATH" default:"/dashboard"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case SessionBackendFile, SessionBackendRedis, SessionBackendMemory:
	default:
		return fmt.Errorf("app: unknown session backend %q", c.SessionBackend)
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("app: API_BASE_URL must be provided")
	}
	if !strings.HasPrefix(c.FallbackPath, "/") {
		return fmt.Errorf("app: fallback path %q must be absolute", c.FallbackPath)
	}
	return nil
}

// SessionFile returns where the file backend keeps its document. An empty
// SESSION_DIR resolves to ~/.onsync.
func (c *Config) SessionFile() string {
	dir := c.SessionDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".onsync")
	}
	return filepath.Join(dir, "session-"+c.SessionNamespace+".json")
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

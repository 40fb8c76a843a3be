package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Shortener ShortenerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	App       AppConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Browser origins allowed to call the API, matched exactly.
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	// Origin suffixes allowed as well, e.g. ".vercel.app" for preview deployments.
	CORSAllowedSuffixes []string `envconfig:"CORS_ALLOWED_SUFFIXES"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://, got %q", c.BaseURL)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig holds database connection configuration.
// The connection fields are only read for the postgres driver.
type DatabaseConfig struct {
	Driver      string `envconfig:"DB_DRIVER" default:"postgres"` // postgres, sqlite, memory
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	Host     string `envconfig:"DB_HOST"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"2"`

	SQLitePath string `envconfig:"DB_SQLITE_PATH" default:"shorturl.db"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		return c.validatePostgres()
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
		return nil
	case DriverMemory:
		return nil
	default:
		return fmt.Errorf("invalid driver: %s (must be one of: postgres, sqlite, memory)", c.Driver)
	}
}

func (c *DatabaseConfig) validatePostgres() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// maxExpirationDays mirrors shortener.MaxExpirationDays.
const maxExpirationDays = 36500

// ShortenerConfig holds short code generation and expiry settings.
type ShortenerConfig struct {
	CodeLength  int `envconfig:"SHORTENER_CODE_LENGTH" default:"6"`
	MaxAttempts int `envconfig:"SHORTENER_MAX_ATTEMPTS" default:"10"`
	// Days until a new link expires when the request does not say. 0 never expires.
	DefaultExpirationDays int `envconfig:"URL_EXPIRATION_DAYS" default:"0"`
}

// Validate validates the shortener configuration.
func (c *ShortenerConfig) Validate() error {
	if c.CodeLength < 4 || c.CodeLength > 32 {
		return fmt.Errorf("code length must be between 4 and 32, got %d", c.CodeLength)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.DefaultExpirationDays < 0 {
		return fmt.Errorf("default expiration days cannot be negative")
	}
	if c.DefaultExpirationDays > maxExpirationDays {
		return fmt.Errorf("default expiration days cannot exceed %d, got %d", maxExpirationDays, c.DefaultExpirationDays)
	}
	return nil
}

// RedisConfig holds the optional redis connection used for caching and rate limiting.
type RedisConfig struct {
	Enabled   bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Addr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string        `envconfig:"REDIS_PASSWORD"`
	DB        int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize  int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	CacheTTL  time.Duration `envconfig:"REDIS_CACHE_TTL" default:"1h"`
	KeyPrefix string        `envconfig:"REDIS_CACHE_KEY_PREFIX" default:"link"`
}

// Validate validates the redis configuration.
func (c *RedisConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("address is required when redis is enabled")
	}
	if c.DB < 0 {
		return fmt.Errorf("db cannot be negative")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	return nil
}

// RateLimitConfig limits requests to /api/ per client IP.
type RateLimitConfig struct {
	Enabled     bool          `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	Window      time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`
	MaxRequests int           `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"100"`
	KeyPrefix   string        `envconfig:"RATE_LIMIT_KEY_PREFIX" default:"rate_limit:"`
	// Key callers on X-Forwarded-For / X-Real-IP. Only safe behind a proxy
	// that sets those headers itself.
	TrustProxy bool `envconfig:"RATE_LIMIT_TRUST_PROXY" default:"false"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Window < time.Second {
		return fmt.Errorf("window must be at least 1s, got %v", c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive")
	}
	return nil
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	if c.Enabled && !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("metrics path must start with /, got %q", c.Path)
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`  // debug, info, warn, error
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"` // json, text
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be one of: json, text)", c.LogFormat)
	}
	return nil
}

type section interface {
	Validate() error
}

// Load loads configuration from environment variables only.
// (Do .env loading in cmd/server/main.go for dev, not here.)
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name   string
		target section
	}{
		{"Server", &cfg.Server},
		{"Database", &cfg.Database},
		{"Shortener", &cfg.Shortener},
		{"Redis", &cfg.Redis},
		{"RateLimit", &cfg.RateLimit},
		{"Metrics", &cfg.Metrics},
		{"App", &cfg.App},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
		if err := s.target.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	if cfg.RateLimit.Enabled && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("invalid RateLimit config: rate limiting requires REDIS_ENABLED=true")
	}

	return cfg, nil
}

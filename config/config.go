package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Identity IdentityConfig
	Store    StoreConfig
	Invite   InviteConfig
	I18n     I18nConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"` // or "*"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"` // if set, used as-is
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName          string        `env:"DB_NAME" envDefault:"fleettrack"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// Verifier modes.
const (
	VerifyRemote = "remote" // ask the identity provider for every uncached token
	VerifyLocal  = "local"  // check the provider's HS256 signature locally
)

// IdentityConfig configures the external identity provider (Supabase GoTrue).
type IdentityConfig struct {
	URL          string        `env:"SUPABASE_URL"`
	AnonKey      string        `env:"SUPABASE_ANON_KEY"`
	JWTSecret    string        `env:"SUPABASE_JWT_SECRET"`
	VerifyMode   string        `env:"IDENTITY_VERIFY_MODE" envDefault:"remote"`
	Timeout      time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"5s"`
	CacheTTL     time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"60s"` // 0 disables the redis cache
	CacheKeySalt string        `env:"IDENTITY_CACHE_KEY_SALT"`
}

// StoreConfig bounds every store call made on a request's behalf.
type StoreConfig struct {
	QueryTimeout time.Duration `env:"STORE_QUERY_TIMEOUT" envDefault:"3s"`
}

// InviteConfig holds invite lifetime and delivery settings.
type InviteConfig struct {
	TTL           time.Duration `env:"INVITE_TTL" envDefault:"168h"`
	AcceptURLBase string        `env:"INVITE_ACCEPT_URL_BASE" envDefault:"http://localhost:5173/invite"`
	Deliver       bool          `env:"INVITE_DELIVERY_ENABLED" envDefault:"true"`
}

// I18nConfig holds locale negotiation settings.
type I18nConfig struct {
	DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"en-US"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file, and
// validates it for the API server.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads configuration without the server checks. The worker and the
// admin CLI use it since they never talk to the identity provider.
func Parse() (*Config, error) {
	_ = godotenv.Load() // .env

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Identity.URL == "" || c.Identity.AnonKey == "" {
		errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY must be set"))
	}
	switch c.Identity.VerifyMode {
	case VerifyRemote:
	case VerifyLocal:
		if c.Identity.JWTSecret == "" {
			errs = append(errs, errors.New("SUPABASE_JWT_SECRET must be set when IDENTITY_VERIFY_MODE=local"))
		}
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_VERIFY_MODE must be %q or %q, got %q", VerifyRemote, VerifyLocal, c.Identity.VerifyMode))
	}
	if c.Identity.Timeout <= 0 {
		errs = append(errs, errors.New("IDENTITY_TIMEOUT must be positive"))
	}
	if c.Store.QueryTimeout <= 0 {
		errs = append(errs, errors.New("STORE_QUERY_TIMEOUT must be positive"))
	}
	if c.Invite.TTL <= 0 {
		errs = append(errs, errors.New("INVITE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. HANGAR_DATABASE_HOST or HANGAR_TOKEN_SECRET.
const EnvPrefix = "HANGAR"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Token         TokenConfig
	Session       SessionConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Policy        PolicyConfig
	Verification  VerificationConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `default:"0.0.0.0"`
	Port           string        `default:"8080"`
	ReadTimeout    time.Duration `split_words:"true" default:"15s"`
	WriteTimeout   time.Duration `split_words:"true" default:"15s"`
	IdleTimeout    time.Duration `split_words:"true" default:"60s"`
	RequestTimeout time.Duration `split_words:"true" default:"10s"`
	StaticDir      string        `split_words:"true" default:"./web/dist"`
	// AllowedOrigins are trusted for cookie-authenticated state changes.
	AllowedOrigins []string `split_words:"true"`
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable only behind a
	// proxy that overwrites them.
	TrustProxy bool `split_words:"true" default:"false"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `default:"localhost"`
	Port            string        `default:"5432"`
	User            string        `default:"hangar"`
	Password        string        `default:""`
	Name            string        `default:"hangar"`
	SSLMode         string        `split_words:"true" default:"disable"`
	MaxConns        int32         `split_words:"true" default:"25"`
	MinConns        int32         `split_words:"true" default:"2"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"5m"`
}

// DSN returns a postgres connection string usable by both pgxpool and database/sql.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		d.User, d.Password, net.JoinHostPort(d.Host, d.Port), d.Name, d.SSLMode)
}

// RedisConfig holds the password-reset token store configuration
type RedisConfig struct {
	Addr     string `default:"127.0.0.1:6379"`
	Password string `default:""`
	DB       int    `default:"0"`
}

// TokenConfig holds bearer credential settings
type TokenConfig struct {
	Secret           string        `required:"true"`
	Issuer           string        `default:"hangar"`
	Audience         string        `default:"hangar-web"`
	TTL              time.Duration `default:"15m"`
	ImpersonationTTL time.Duration `split_words:"true" default:"10m"`
}

// SessionConfig holds browser cookie configuration
type SessionConfig struct {
	CookieName              string `split_words:"true" default:"hangar_session"`
	ImpersonationCookieName string `split_words:"true" default:"hangar_impersonation"`
	CookieDomain            string `split_words:"true" default:""`
	CookiePath              string `split_words:"true" default:"/"`
	CookieSecure            bool   `split_words:"true" default:"false"`
	CookieSameSite          string `split_words:"true" default:"Lax"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32        `split_words:"true" default:"65536"`
	Argon2Iterations   uint32        `split_words:"true" default:"3"`
	Argon2Parallelism  uint8         `split_words:"true" default:"4"`
	Argon2SaltLength   uint32        `split_words:"true" default:"16"`
	Argon2KeyLength    uint32        `split_words:"true" default:"32"`
	LockoutMaxAttempts int           `split_words:"true" default:"5"`
	LockoutDuration    time.Duration `split_words:"true" default:"15m"`
	ResetTokenTTL      time.Duration `split_words:"true" default:"30m"`
	// LogResetLinks writes password reset links to the log instead of
	// delivering them. Development only: the links are live credentials.
	LogResetLinks bool `split_words:"true" default:"false"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `split_words:"true" default:"10"`
	Burst             int     `default:"20"`
	// AuthPerMinute throttles credential endpoints per client IP.
	AuthPerMinute int `split_words:"true" default:"10"`
}

// PolicyConfig points at the access policy document. An empty File uses
// the policy compiled into the binary.
type PolicyConfig struct {
	File string `default:""`
}

// VerificationConfig holds identity verification webhook settings
type VerificationConfig struct {
	WebhookSecret string   `split_words:"true" default:""`
	ApprovedRoles []string `split_words:"true" default:"STUDENT"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `split_words:"true" default:"info"`
	LogFormat      string `split_words:"true" default:"json"`
	OTELEnabled    bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint   string `envconfig:"OTEL_ENDPOINT" default:""`
	ServiceName    string `split_words:"true" default:"hangar"`
	ServiceVersion string `split_words:"true" default:"0.1.0"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if len(c.Token.Secret) < 32 {
		errs = append(errs, errors.New("HANGAR_TOKEN_SECRET must be at least 32 bytes"))
	}
	// Token expiry has whole-second resolution.
	if c.Token.TTL < time.Second {
		errs = append(errs, errors.New("HANGAR_TOKEN_TTL must be at least 1s"))
	}
	if c.Token.ImpersonationTTL < time.Second || c.Token.ImpersonationTTL > c.Token.TTL {
		errs = append(errs, errors.New("HANGAR_TOKEN_IMPERSONATION_TTL must be at least 1s and not exceed HANGAR_TOKEN_TTL"))
	}
	if c.Session.CookieName == c.Session.ImpersonationCookieName {
		errs = append(errs, errors.New("session and impersonation cookies must have distinct names"))
	}
	switch c.Session.CookieSameSite {
	case "Lax", "Strict", "None":
	default:
		errs = append(errs, fmt.Errorf("unsupported cookie SameSite mode %q", c.Session.CookieSameSite))
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.Observability.LogFormat))
	}
	if c.Security.LogResetLinks && c.Session.CookieSecure {
		errs = append(errs, errors.New("HANGAR_SECURITY_LOG_RESET_LINKS is for development and cannot be combined with secure cookies"))
	}
	if c.Security.LockoutMaxAttempts < 1 {
		errs = append(errs, errors.New("HANGAR_SECURITY_LOCKOUT_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}

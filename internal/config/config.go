// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// devSecret is only used when JWT_SECRET is unset outside production.
const devSecret = "dev-secret-key-do-not-use-in-production!!"

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links in notifications.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds credential and token settings.
	Auth AuthConfig

	// Mail holds outbound SMTP settings for notifications.
	Mail MailConfig

	// RateLimit holds request throttling settings.
	RateLimit RateLimitConfig

	// HTTP holds edge settings for the HTTP server.
	HTTP HTTPConfig
}

// HTTPConfig holds settings that depend on how the server is deployed.
type HTTPConfig struct {
	// CORSOrigins lists origins allowed to call the API with credentials
	// (default: BaseURL).
	CORSOrigins []string

	// TrustedProxies lists CIDRs whose X-Forwarded-* headers are believed.
	TrustedProxies []string

	// BodyLimit caps request bodies, in Echo's size syntax (default: "10K").
	BodyLimit string
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "wayfarer").
	User string

	// Password is the MariaDB password (default: "wayfarer").
	Password string

	// Name is the database name (default: "wayfarer").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds credential settings. Fixed for the life of the process.
type AuthConfig struct {
	// JWTSecret is the HMAC key used to sign bearer tokens.
	JWTSecret string

	// TokenTTL is how long an issued bearer token stays valid.
	TokenTTL time.Duration

	// CookieTTLDays is the lifetime of the credential cookie, in days.
	CookieTTLDays int

	// CookieName is the cookie that carries the credential for browsers.
	CookieName string

	// ResetTokenTTL is how long a password reset token can be redeemed.
	ResetTokenTTL time.Duration

	// HashConcurrency bounds the number of password hashes computed at once.
	HashConcurrency int

	// DetailedErrors exposes the specific guard failure in 401 messages.
	// Operator convenience for development; off in production.
	DetailedErrors bool
}

// CookieTTL returns the cookie lifetime as a duration.
func (a AuthConfig) CookieTTL() time.Duration {
	return time.Duration(a.CookieTTLDays) * 24 * time.Hour
}

// MailConfig holds SMTP transport settings.
type MailConfig struct {
	// Host is the SMTP server. Empty disables outbound mail.
	Host string

	// Port is the SMTP port (default: 587).
	Port int

	// Username and Password authenticate against the server when set.
	Username string
	Password string

	// FromAddress and FromName populate the From header.
	FromAddress string
	FromName    string

	// Encryption is "starttls" (default), "ssl", or "none".
	Encryption string

	// Timeout bounds a single delivery attempt including dial.
	Timeout time.Duration
}

// RateLimitConfig holds request throttling settings.
type RateLimitConfig struct {
	// APIRequests is the per-IP request budget for the whole API per APIWindow.
	APIRequests int
	APIWindow   time.Duration

	// AuthRequests is the shared (Redis) budget per IP for credential
	// endpoints (login, signup, forgot/reset password) per AuthWindow.
	AuthRequests int
	AuthWindow   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or values are invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "wayfarer"),
			Password:        getEnv("DB_PASSWORD", "wayfarer"),
			Name:            getEnv("DB_NAME", "wayfarer"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			TokenTTL:        getEnvDuration("JWT_EXPIRES_IN", 90*24*time.Hour),
			CookieTTLDays:   getEnvInt("JWT_COOKIE_EXPIRES_IN", 90),
			CookieName:      getEnv("AUTH_COOKIE_NAME", "jwt"),
			ResetTokenTTL:   getEnvDuration("AUTH_RESET_TOKEN_TTL", 10*time.Minute),
			HashConcurrency: getEnvInt("AUTH_HASH_CONCURRENCY", 4),
		},

		Mail: MailConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", "no-reply@localhost"),
			FromName:    getEnv("SMTP_FROM_NAME", "Wayfarer"),
			Encryption:  strings.ToLower(getEnv("SMTP_ENCRYPTION", "starttls")),
			Timeout:     getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},

		RateLimit: RateLimitConfig{
			APIRequests:  getEnvInt("RATE_LIMIT_API_REQUESTS", 100),
			APIWindow:    getEnvDuration("RATE_LIMIT_API_WINDOW", time.Hour),
			AuthRequests: getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindow:   getEnvDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute),
		},
	}

	cfg.HTTP = HTTPConfig{
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{cfg.BaseURL}),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
			"fd00::/8",
		}),
		BodyLimit: getEnv("HTTP_BODY_LIMIT", "10K"),
	}

	cfg.Auth.DetailedErrors = getEnvBool("AUTH_DETAILED_ERRORS", !cfg.IsProduction())

	// Validate required fields in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	if cfg.IsProduction() {
		if cfg.Auth.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(cfg.Auth.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = devSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks values that would otherwise fail at request time.
func (c *Config) validate() error {
	var errs []error
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.Auth.CookieTTLDays <= 0 {
		errs = append(errs, errors.New("JWT_COOKIE_EXPIRES_IN must be a positive number of days"))
	}
	if c.Auth.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_RESET_TOKEN_TTL must be positive"))
	}
	if c.Auth.HashConcurrency <= 0 {
		errs = append(errs, errors.New("AUTH_HASH_CONCURRENCY must be positive"))
	}
	if c.Auth.CookieName == "" {
		errs = append(errs, errors.New("AUTH_COOKIE_NAME must not be empty"))
	}
	if c.Mail.Timeout <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT must be positive"))
	}
	if c.RateLimit.APIRequests <= 0 || c.RateLimit.APIWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_API_REQUESTS and RATE_LIMIT_API_WINDOW must be positive"))
	}
	if c.RateLimit.AuthRequests <= 0 || c.RateLimit.AuthWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_AUTH_REQUESTS and RATE_LIMIT_AUTH_WINDOW must be positive"))
	}
	switch c.Mail.Encryption {
	case "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("SMTP_ENCRYPTION %q is not one of starttls, ssl, none", c.Mail.Encryption))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default. Empty
// items are dropped, so an empty value yields an empty list.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

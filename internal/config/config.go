// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN. Commands that touch the database fail without it.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// QueryFetchLimit is the default total result budget of measurement listings.
	QueryFetchLimit int `mapstructure:"QUERY_FETCH_LIMIT"`
	// StalenessWindow is how long a device properties snapshot counts as current (e.g. "90s").
	StalenessWindow string `mapstructure:"STALENESS_WINDOW"`
	// FilterCacheTTL is how long parsed task filters are cached (e.g. "5m").
	FilterCacheTTL string `mapstructure:"FILTER_CACHE_TTL"`
	// DefaultTimezone is the IANA zone measurement timestamps are displayed in.
	DefaultTimezone string `mapstructure:"DEFAULT_TIMEZONE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only needed to issue tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used to verify principal tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "mobiperf-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "mobiperf-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("QUERY_FETCH_LIMIT", 1000)
	v.SetDefault("STALENESS_WINDOW", "90s")
	v.SetDefault("FILTER_CACHE_TTL", "5m")
	v.SetDefault("DEFAULT_TIMEZONE", "UTC")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "mobiperf-auth")
	v.SetDefault("JWT_AUDIENCE", "mobiperf-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "mobiperf")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.QueryFetchLimit <= 0 {
		return nil, errors.New("config: QUERY_FETCH_LIMIT must be positive")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if d, err := time.ParseDuration(cfg.StalenessWindow); err != nil || d <= 0 {
		return nil, fmt.Errorf("config: STALENESS_WINDOW %q is not a positive duration", cfg.StalenessWindow)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("config: DEFAULT_TIMEZONE: %w", err)
	}

	return &cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}

// Level returns LogLevel as a slog.Level. Returns info if unset or invalid.
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// Staleness parses StalenessWindow. Returns 90s if unset or invalid.
func (c *Config) Staleness() time.Duration {
	d, err := time.ParseDuration(c.StalenessWindow)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// FilterTTL parses FilterCacheTTL. Returns 5m if unset or invalid.
func (c *Config) FilterTTL() time.Duration {
	d, err := time.ParseDuration(c.FilterCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Location loads DefaultTimezone. Returns UTC if unset or unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

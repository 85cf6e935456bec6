// Package config loads the server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store is the persistence subset of Config. cmd/admin loads only this.
type Store struct {
	DatabaseDriver string        `env:"DATABASE_DRIVER" envDefault:"sqlite"` // sqlite or postgres
	DatabaseURL    string        `env:"DATABASE_URL" envDefault:"data/devices.db"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

// Config is every setting the server reads at startup.
type Config struct {
	Store

	Port int `env:"PORT" envDefault:"8080"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleDiscoveryURL string `env:"GOOGLE_DISCOVERY_URL" envDefault:"https://accounts.google.com/.well-known/openid-configuration"`

	PublicURL     string `env:"PUBLIC_URL"` // defaults to http://localhost:PORT
	DownstreamURL string `env:"DOWNSTREAM_URL" envDefault:"https://localhost:4200/dashboard"`

	SecretKey  string        `env:"SECRET_KEY"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	RedisURL string `env:"REDIS_URL"` // empty means in-memory revocation

	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment, fills derived defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStore parses only the database settings.
func LoadStore() (Store, error) {
	var st Store
	if err := env.Parse(&st); err != nil {
		return Store{}, fmt.Errorf("parse env: %w", err)
	}
	if err := errors.Join(st.validate()...); err != nil {
		return Store{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return st, nil
}

func (s Store) validate() []error {
	var errs []error
	switch s.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q must be sqlite or postgres", s.DatabaseDriver))
	}
	if s.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if s.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	return errs
}

// Validate reports every problem at once so a misconfigured deploy fails
// with the full list instead of one error per restart.
func (c Config) Validate() error {
	errs := c.Store.validate()

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
	}
	if c.GoogleClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required"))
	}
	if len(c.SecretKey) < 16 {
		errs = append(errs, errors.New("SECRET_KEY must be at least 16 characters"))
	}
	if !isAbsoluteURL(c.PublicURL) {
		errs = append(errs, fmt.Errorf("PUBLIC_URL %q must be an absolute URL", c.PublicURL))
	}
	if !isAbsoluteURL(c.DownstreamURL) {
		errs = append(errs, fmt.Errorf("DOWNSTREAM_URL %q must be an absolute URL", c.DownstreamURL))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// RedirectURL is the OAuth callback registered with Google.
func (c Config) RedirectURL() string {
	return c.PublicURL + "/login/callback"
}

// TLSEnabled reports whether the server should serve HTTPS itself.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// SecureCookies reports whether cookies should carry the Secure flag:
// true whenever browsers reach the site over HTTPS, directly or via a proxy.
func (c Config) SecureCookies() bool {
	return c.TLSEnabled() || strings.HasPrefix(c.PublicURL, "https://")
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q must be debug, info, warn or error", s)
	}
	return level, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

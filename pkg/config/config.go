// Package config loads the service configuration from the environment and
// the gate policy from its YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Client state backends.
const (
	StateBackendDatabase = "database"
	StateBackendMemory   = "memory"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the typed service configuration.
type Config struct {
	// Server
	Port               string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	ServerIdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	PublicBaseURL      string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	CookieSecure       bool          `env:"COOKIE_SECURE" envDefault:"false"`

	// Storage
	DBDriver     string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DBURL        string `env:"DB_URL" envDefault:"file:signals.db?_busy_timeout=5000&_journal_mode=WAL"`
	StateBackend string `env:"CLIENT_STATE_BACKEND" envDefault:"database"`

	// Gate policy
	PolicyFile string `env:"GATE_POLICY_FILE"`

	// Verification
	JWTSecret        string        `env:"JWT_SECRET"`
	AdminSecret      string        `env:"ADMIN_JWT_SECRET"`
	ResendAPIKey     string        `env:"RESEND_API_KEY"`
	FromEmail        string        `env:"FROM_EMAIL" envDefault:"signals@localhost"`
	FromName         string        `env:"FROM_NAME" envDefault:"Signals"`
	BrandName        string        `env:"BRAND_NAME" envDefault:"Signals"`
	CodeTTL          time.Duration `env:"VERIFY_CODE_TTL" envDefault:"15m"`
	MagicLinkTTL     time.Duration `env:"MAGIC_LINK_TTL" envDefault:"15m"`
	MarkerTTL        time.Duration `env:"VERIFIED_MARKER_TTL" envDefault:"720h"`
	NoticeCookieTTL  time.Duration `env:"NOTICE_COOKIE_TTL" envDefault:"60s"`
	VerifyTimeout    time.Duration `env:"VERIFY_REQUEST_TIMEOUT" envDefault:"5s"`
	MaxCodeAttempts  int           `env:"VERIFY_CODE_MAX_ATTEMPTS" envDefault:"5"`
	MagicLinkSuccess string        `env:"MAGIC_LINK_REDIRECT" envDefault:"/"`

	// Background work
	VisitorIdleTTL  time.Duration `env:"VISITOR_IDLE_TTL" envDefault:"30m"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
	StateRetention  time.Duration `env:"CLIENT_STATE_RETENTION" envDefault:"0s"`
	CleanupVerbose  bool          `env:"CLEANUP_VERBOSE" envDefault:"false"`
	SlowQueryMS     int           `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"100"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON   bool   `env:"LOG_JSON" envDefault:"true"`
	LogToFile bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogDir    string `env:"LOG_DIR" envDefault:"logs"`
	LogSource bool   `env:"LOG_SOURCE" envDefault:"false"`
}

// Load reads an optional .env file and parses the environment. Variables
// already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with. Missing secrets
// are allowed; the verification boundary reports itself unavailable.
func (c *Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("%w: PORT is empty", ErrInvalidConfig)
	case c.StateBackend != StateBackendDatabase && c.StateBackend != StateBackendMemory:
		return fmt.Errorf("%w: CLIENT_STATE_BACKEND must be %q or %q", ErrInvalidConfig, StateBackendDatabase, StateBackendMemory)
	case c.CleanupInterval <= 0:
		return fmt.Errorf("%w: CLEANUP_INTERVAL must be positive", ErrInvalidConfig)
	case c.CodeTTL <= 0 || c.MagicLinkTTL <= 0 || c.MarkerTTL <= 0:
		return fmt.Errorf("%w: verification TTLs must be positive", ErrInvalidConfig)
	case c.MaxCodeAttempts < 1:
		return fmt.Errorf("%w: VERIFY_CODE_MAX_ATTEMPTS must be at least 1", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}

// MagicLinkURL is the endpoint mailed in magic links.
func (c *Config) MagicLinkURL() string {
	return c.PublicBaseURL + "/api/v1/verify/magic-link"
}

// VerificationConfigured reports whether codes and links can be issued.
func (c *Config) VerificationConfigured() bool {
	return c.JWTSecret != "" && c.ResendAPIKey != ""
}

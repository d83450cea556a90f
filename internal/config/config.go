package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendSheets   = "sheets"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendSupabase, BackendSheets}

// MinSessionSecret is the shortest accepted SESSION_SECRET.
const MinSessionSecret = 16

type Config struct {
	// HTTP Server
	Port          string        `envconfig:"PORT" default:"8081"`
	RateLimit     int           `envconfig:"RATE_LIMIT" default:"60"`
	SecureCookies bool          `envconfig:"SECURE_COOKIES" default:"false"`
	Timezone      string        `envconfig:"TIMEZONE" default:"Asia/Qatar"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string        `envconfig:"LOG_FORMAT" default:"text"`
	Shutdown      time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Backend selection
	DataBackend string `envconfig:"DATA_BACKEND" default:"memory"`
	DataDir     string `envconfig:"DATA_DIR" default:"./data"`

	// SQLite
	SQLiteDBPath string `envconfig:"SQLITE_DB_PATH" default:"./data/vansales.db"`

	// Postgres
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// Supabase
	SupabaseURL     string        `envconfig:"SUPABASE_URL"`
	SupabaseKey     string        `envconfig:"SUPABASE_KEY"`
	SupabaseTimeout time.Duration `envconfig:"SUPABASE_TIMEOUT" default:"15s"`

	// Google Sheets
	GoogleSpreadsheetID      string `envconfig:"GOOGLE_SPREADSHEET_ID"`
	GoogleServiceAccountJSON string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	// AMQP
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"vansales"`
	AMQPQueue    string `envconfig:"AMQP_QUEUE" default:"vansales_mirror"`

	// Cache
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// Archive
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"vansales"`

	// Auth
	SessionSecret string        `envconfig:"SESSION_SECRET"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	PortalUsers   []string      `envconfig:"PORTAL_USERS"`

	// Imports and jobs
	ImportTTL    time.Duration `envconfig:"IMPORT_TTL" default:"15m"`
	SummaryCron  string        `envconfig:"SUMMARY_CRON" default:"55 23 * * *"`
	SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"30s"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Location resolves TIMEZONE, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimit))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			errors = append(errors, "SUPABASE_URL and SUPABASE_KEY are required when using supabase backend")
		} else if u, err := url.Parse(c.SupabaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid Supabase URL '%s'", c.SupabaseURL))
		}
	case BackendSheets:
		errors = append(errors, c.validateSheets("sheets backend")...)
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MongoURI != "" && c.MongoDatabase == "" {
		errors = append(errors, "MONGO_DATABASE cannot be empty when MONGO_URI is provided")
	}

	if len(c.SessionSecret) < MinSessionSecret {
		errors = append(errors, fmt.Sprintf("SESSION_SECRET must be at least %d characters", MinSessionSecret))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL))
	}
	if len(c.PortalUsers) == 0 {
		errors = append(errors, "PORTAL_USERS must list at least one user as name:role:bcrypt-hash")
	}

	if c.ImportTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid import ttl %v: must be at least 1 minute", c.ImportTTL))
	}

	if _, err := cron.ParseStandard(c.SummaryCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid summary cron '%s': %v", c.SummaryCron, err))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks what the sheets mirror worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the mirror worker")
	}
	if c.DataBackend == BackendMemory {
		errors = append(errors, "the mirror worker needs a shared data backend, not memory")
	}
	errors = append(errors, c.validateSheets("mirror worker")...)
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSheets(what string) []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, fmt.Sprintf("GOOGLE_SPREADSHEET_ID is required for the %s", what))
	}
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasFile && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errors = append(errors, fmt.Sprintf("either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the %s", what))
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errors
}

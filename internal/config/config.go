package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"

	"budget/internal/log"
)

type Config struct {
	// Persistence
	DataBackend    string
	DataDir        string
	SQLiteDBPath   string
	PostgresDSN    string
	PersistTimeout time.Duration

	// Ledger
	LockMode          string
	ReconcileInterval time.Duration
	StatsCacheTTL     time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets import
	GoogleSpreadsheetID string
	GoogleLedgerSheet   string

	// Logging
	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"data_backend":          "memory",
	"data_dir":              "data",
	"sqlite_db_path":        "./data/ledger.db",
	"postgres_dsn":          "",
	"persist_timeout":       "5s",
	"lock_mode":             "queue",
	"reconcile_interval":    "5m",
	"stats_cache_ttl":       "30s",
	"amqp_url":              "",
	"amqp_exchange":         "ledger",
	"amqp_queue":            "ledger_events",
	"google_spreadsheet_id": "",
	"google_ledger_sheet":   "Ledger",
	"log_level":             "info",
	"log_format":            "text",
}

var validBackends = []string{"memory", "sqlite", "postgres"}

// Load reads defaults overridden by the environment.
func Load() *Config {
	return fromViper(newViper())
}

// LoadFile layers a YAML (or any viper-supported) file between the defaults
// and the environment. An empty path falls back to LEDGER_CONFIG; when that
// is empty too only defaults and the environment are used.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("LEDGER_CONFIG"))
	}
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		DataBackend:    strings.ToLower(strings.TrimSpace(v.GetString("data_backend"))),
		DataDir:        v.GetString("data_dir"),
		SQLiteDBPath:   v.GetString("sqlite_db_path"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		PersistTimeout: v.GetDuration("persist_timeout"),

		LockMode:          strings.ToLower(strings.TrimSpace(v.GetString("lock_mode"))),
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		StatsCacheTTL:     v.GetDuration("stats_cache_ttl"),

		AMQPURL:      v.GetString("amqp_url"),
		AMQPExchange: v.GetString("amqp_exchange"),
		AMQPQueue:    v.GetString("amqp_queue"),

		GoogleSpreadsheetID: v.GetString("google_spreadsheet_id"),
		GoogleLedgerSheet:   v.GetString("google_ledger_sheet"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "postgres" {
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if _, err := pgxpool.ParseConfig(c.PostgresDSN); err != nil {
			errors = append(errors, fmt.Sprintf("invalid POSTGRES_DSN: %v", err))
		}
	}

	if c.PersistTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid persist timeout %v: must be positive", c.PersistTimeout))
	} else if c.PersistTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid persist timeout %v: must be at most 5 minutes", c.PersistTimeout))
	}

	if c.LockMode != "queue" && c.LockMode != "reject" {
		errors = append(errors, fmt.Sprintf("invalid lock mode '%s': must be queue or reject", c.LockMode))
	}

	// Zero disables the periodic drift check.
	if c.ReconcileInterval < 0 || (c.ReconcileInterval > 0 && c.ReconcileInterval < time.Second) {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be 0 or at least 1 second", c.ReconcileInterval))
	}

	if c.StatsCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid stats cache TTL %v: must be positive", c.StatsCacheTTL))
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

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// SheetsEnabled reports whether a spreadsheet is configured for import.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

package backend

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"budget/internal/config"
)

// ParseBackendType accepts any casing and surrounding space.
func ParseBackendType(s string) (BackendType, error) {
	bt := BackendType(strings.ToLower(strings.TrimSpace(s)))
	if !bt.IsValid() {
		return "", fmt.Errorf("unknown backend %q: must be one of %s", s, strings.Join(BackendTypes(), ", "))
	}
	return bt, nil
}

// BackendTypes lists the accepted backend names.
func BackendTypes() []string {
	out := make([]string, len(backendTypes))
	for i, t := range backendTypes {
		out[i] = t.String()
	}
	return out
}

func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	bt, err := ParseBackendType(appConfig.DataBackend)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Type:          bt,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		PostgresDSN:   appConfig.PostgresDSN,
		DataDirectory: appConfig.DataDir,
	}, nil
}

func (c Config) Validate() error {
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("sqlite backend needs a database path")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres backend needs a DSN")
		}
		if _, err := pgconn.ParseConfig(c.PostgresDSN); err != nil {
			return fmt.Errorf("postgres backend: %w", err)
		}
	case MemoryBackend:
	default:
		return fmt.Errorf("unknown backend %q: must be one of %s", c.Type, strings.Join(BackendTypes(), ", "))
	}
	return nil
}

// Target describes where the store lives, safe for logs: the postgres
// password never appears.
func (c Config) Target() string {
	switch c.Type {
	case SQLiteBackend:
		return c.SQLiteDBPath
	case PostgresBackend:
		pc, err := pgconn.ParseConfig(c.PostgresDSN)
		if err != nil {
			return "postgres (unparsable DSN)"
		}
		return fmt.Sprintf("%s@%s:%d/%s", pc.User, pc.Host, pc.Port, pc.Database)
	case MemoryBackend:
		if c.DataDirectory == "" {
			return "memory"
		}
		return "memory seeded from " + c.DataDirectory
	}
	return string(c.Type)
}

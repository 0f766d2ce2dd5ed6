package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is the version the embedded migrations end at.
const SchemaVersion uint = 1

// Migrate brings the ledger schema at dbPath up to SchemaVersion and
// returns the version found before and after. A dirty database (a previous
// migration failed half-way) is refused rather than migrated further.
//
// The migrator owns its own connection because closing the sqlite driver
// closes the underlying *sql.DB.
func Migrate(dbPath string) (from, to uint, err error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open migration database: %w", err)
	}
	defer conn.Close()

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return 0, 0, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, 0, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, 0, fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	from, err = currentVersion(m)
	if err != nil {
		return 0, 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, 0, fmt.Errorf("migrate %s from version %d: %w", dbPath, from, err)
	}
	to, err = currentVersion(m)
	if err != nil {
		return from, 0, err
	}
	return from, to, nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("schema is dirty at version %d", v)
	}
	return v, nil
}

// Package backend opens the persistence.Store selected by configuration.
package backend

import (
	"context"

	"budget/internal/persistence"
)

// CleanupFunc releases whatever the store holds open.
type CleanupFunc func() error

type BackendResult struct {
	Store   persistence.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config carries only the settings relevant to Type; the others are
// ignored.
type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresDSN  string
	// DataDirectory is where the memory store looks for
	// seed_categories.txt. Empty starts with no categories.
	DataDirectory string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

var backendTypes = []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	for _, t := range backendTypes {
		if bt == t {
			return true
		}
	}
	return false
}

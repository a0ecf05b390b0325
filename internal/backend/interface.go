package backend

import (
	"context"

	"fatture/internal/session"
	"fatture/internal/storage"
)

// CleanupFunc releases what a backend opened.
type CleanupFunc func() error

// Check probes one dependency for the readiness endpoint.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Result holds the stores the binaries run on. Jobs is nil when no SQLite
// database is configured; exports are then disabled.
type Result struct {
	Sessions session.Store
	Jobs     *storage.SQLiteRepository
	Checks   []Check
	Cleanup  CleanupFunc
}

// Factory creates the stores selected by the configuration.
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	// SQLiteDBPath also hosts the export job table for the redis and
	// memory session backends when set.
	SQLiteDBPath string
	RedisURL     string
}

// BackendType names where sessions are kept.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, RedisBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fatture/internal/session"
	"fatture/internal/storage"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// Create opens the session store and, when a database path is configured,
// the SQLite export job store. A failure closes whatever was already opened.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	var closers []func() error
	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if config.SQLiteDBPath != "" {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		closers = append(closers, repo.Close)
		res.Jobs = repo
		res.Checks = append(res.Checks, Check{Name: "sqlite", Probe: repo.Ping})
	}

	switch config.Type {
	case SQLiteBackend:
		res.Sessions = res.Jobs
	case RedisBackend:
		store, err := session.NewRedisStore(ctx, config.RedisURL)
		if err != nil {
			_ = res.Cleanup()
			return nil, fmt.Errorf("failed to initialize Redis session store: %w", err)
		}
		closers = append(closers, store.Close)
		res.Sessions = store
		res.Checks = append(res.Checks, Check{Name: "redis", Probe: store.Ping})
	case MemoryBackend:
		res.Sessions = session.NewMemoryStore()
		f.logger.Warn("Sessions are kept in memory and are lost on restart")
	}

	f.logger.Info("Initialized backend",
		"session_backend", config.Type.String(),
		"exports_enabled", res.Jobs != nil,
		"db_path", config.SQLiteDBPath)
	return res, nil
}

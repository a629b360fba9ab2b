package storage

import (
	"context"
	"fmt"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendLibSQL Backend = "libsql"
	BackendRedis  Backend = "redis"
)

type Options struct {
	Backend Backend
	// DSN is the database file or URL for the sql backends.
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

// Open connects the configured backend and checks that it answers.
func Open(ctx context.Context, opts Options) (Store, error) {
	var store Store
	switch opts.Backend {
	case "", BackendMemory:
		store = NewMemoryStore()
	case BackendSQLite, BackendLibSQL:
		sqlStore, err := OpenSQLStore(ctx, string(opts.Backend), opts.DSN, opts.Namespace)
		if err != nil {
			return nil, err
		}
		store = sqlStore
	case BackendRedis:
		store = NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.Namespace)
	default:
		return nil, &StorageError{Message: fmt.Sprintf("%q", opts.Backend), Cause: ErrCauseUnknownBackend}
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

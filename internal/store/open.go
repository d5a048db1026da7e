package store

import (
	"context"
	"fmt"
)

// Supported backend drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Options selects and configures a backend
type Options struct {
	Driver string
	Path   string
	Redis  RedisOptions
}

// Open builds a Store over the configured backend
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch opts.Driver {
	case "", DriverFile:
		backend, err = NewFileBackend(opts.Path)
	case DriverSQLite:
		backend, err = NewSQLiteBackend(ctx, opts.Path)
	case DriverRedis:
		backend, err = NewRedisBackend(ctx, opts.Redis)
	case DriverMemory:
		backend = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown session store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return New(backend), nil
}

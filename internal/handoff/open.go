package handoff

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend string
	DSN     string
	TTL     time.Duration
	Redis   RedisOptions
}

// Open creates the Store named by opts.Backend. An empty backend is SQLite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return NewSQLiteStore(opts.DSN, opts.TTL)
	case BackendRedis:
		ro := opts.Redis
		if ro.TTL == 0 {
			ro.TTL = opts.TTL
		}
		return NewRedisStore(ctx, ro)
	default:
		return nil, fmt.Errorf("unknown handoff backend %q", opts.Backend)
	}
}

// Package journal persists execution results so submitted bundles can be
// audited after the fact.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-arb-go/engine"
)

// Drivers accepted by Open.
const (
	DriverNone   = "none"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("journal: unknown driver")

// Store records execution results and lists the most recent ones.
type Store interface {
	Record(ctx context.Context, result engine.ExecutionResult) error
	// Recent returns up to n results, newest first.
	Recent(ctx context.Context, n int) ([]engine.ExecutionResult, error)
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver string

	RedisAddr     string
	RedisDB       int
	RedisPassword string
	Stream        string
	MaxLen        int64

	SQLitePath string
}

// Open returns the Store named by cfg.Driver, or nil for DriverNone.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverRedis:
		j, err := NewRedisJournal(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return j, nil
	case DriverSQLite:
		j, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

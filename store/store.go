// Package store provides the durable blob stores the coordinators persist into.
package store

import (
	"context"
	"fmt"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the Store for driver.
func Open(ctx context.Context, driver, dsn, prefix string) (ridinglookup.Store, error) {
	switch driver {
	case DriverMemory, "":
		return ridinglookup.NewMemoryStore(), nil
	case DriverRedis:
		return NewRedisStore(ctx, dsn, prefix)
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn, prefix)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn, prefix)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ridinglookup.ErrInvalidInput, driver)
	}
}

func qualified(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

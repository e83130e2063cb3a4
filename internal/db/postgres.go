// Package db opens the Postgres pool and applies the schema.
package db

import (
	"context"
	"fmt"
	"time"

	"logbook/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

const SchemaName = "logbook"

type PoolOptions struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

func Connect(ctx context.Context, config *types.Config) (*pgxpool.Pool, error) {
	return ConnectURL(ctx, config.DatabaseURL, PoolOptions{MaxConns: config.DatabaseMaxConns})
}

// ConnectURL opens a pool with the logbook schema on the search path
// unless the URL sets one, and pings it before returning.
func ConnectURL(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if _, ok := poolConfig.ConnConfig.RuntimeParams["search_path"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = SchemaName
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}

	poolConfig.MaxConnIdleTime = 15 * time.Minute
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	poolConfig.MaxConnLifetime = 45 * time.Minute
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

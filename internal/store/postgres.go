// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package store manages the PostgreSQL connection and schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect waits for the database.
type ConnectOptions struct {
	// MaxAttempts bounds the number of pings. Zero means 5.
	MaxAttempts uint64
	// InitialBackoff is the first retry delay, doubled per attempt. Zero means 250ms.
	InitialBackoff time.Duration
	Logger         *slog.Logger
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool for databaseURL and pings it, retrying with
// exponential backoff while the server comes up.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := WaitReady(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// WaitReady pings p until it answers or the attempts are used up.
func WaitReady(ctx context.Context, p Pinger, opts ConnectOptions) error {
	opts = opts.withDefaults()
	backoff := retry.WithMaxRetries(opts.MaxAttempts-1, retry.NewExponential(opts.InitialBackoff))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			opts.Logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

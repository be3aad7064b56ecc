// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/api"
	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/memory"
	"github.com/natours/natours/internal/auth/postgres"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/mail"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the user directory.
	// Default: openStore
	StoreFactory StoreFactory

	// NotifierFactory creates the reset mail notifier.
	// Default: newNotifier
	NotifierFactory func(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the users API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, opts api.ServerOptions) APIServer
}

// StoreFactory opens the configured user directory.
type StoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*UserStore, error)

// UserStore is an open user directory.
type UserStore struct {
	Users auth.UserRepository
	// Ready reports whether the backing database answers.
	Ready observability.ReadinessChecker
	// Close releases the connection pool.
	Close func()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer wraps the methods used from api.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openStore
	}
	if out.NotifierFactory == nil {
		out.NotifierFactory = newNotifier
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, opts api.ServerOptions) APIServer {
			return api.NewServer(addr, handler, opts)
		}
	}
	return &out
}

// openStore opens the store named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*UserStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.WarnContext(ctx, "using the in-memory user store, accounts are lost on exit")
		return &UserStore{
			Users: memory.NewUserRepository(),
			Ready: func(context.Context) error { return nil },
			Close: func() {},
		}, nil
	case config.StorePostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{Logger: logger})
		if err != nil {
			return nil, err
		}
		return &UserStore{
			Users: postgres.NewUserRepository(pool),
			Ready: pool.Ping,
			Close: pool.Close,
		}, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "store").Errorf("unknown store %q", cfg.Store)
	}
}

// newNotifier creates the notifier named by cfg.Mail.Driver.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	switch cfg.Mail.Driver {
	case config.MailDriverSMTP:
		n, err := mail.NewSMTPNotifier(cfg.SMTPConfig(), mail.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return n, nil
	case config.MailDriverLog:
		return mail.NewLogNotifier(logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "mail.driver").Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

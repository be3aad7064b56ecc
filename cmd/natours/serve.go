// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/api"
	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/pkg/errutil"
)

// shutdownTimeout bounds the graceful stop of both servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the users API server",
		Long: `Start the users API server and, unless --metrics-addr is empty, the
metrics and health server. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			logger, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, cfg, logger, nil)
		},
	}
}

// runServeWithDeps wires the services and runs both servers until ctx is
// done or a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) error {
	deps = deps.withDefaults()

	logger.InfoContext(ctx, "starting natours",
		"addr", cfg.Server.Addr,
		"store", cfg.Store,
		"mail_driver", cfg.Mail.Driver)

	st, err := deps.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer st.Close()

	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ready)
	metrics := obsServer.Metrics()

	argon, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return err
	}
	hasher, err := auth.NewHashPool(argon, cfg.Hash.Workers, auth.WithHashObserver(metrics.ObserveHash))
	if err != nil {
		return err
	}
	defer hasher.Close()

	codec, err := auth.NewTokenCodec(cfg.TokenConfig())
	if err != nil {
		return err
	}

	notifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return oops.With("operation", "create notifier").Wrap(err)
	}

	authService, err := auth.NewAuthService(st.Users, hasher, codec, auth.WithLogger(logger))
	if err != nil {
		return err
	}
	resetService, err := auth.NewPasswordResetService(st.Users, hasher, codec, notifier,
		auth.ResetLinkFor(cfg.Server.PublicURL), auth.WithLogger(logger))
	if err != nil {
		return err
	}
	guard, err := auth.NewGuard(codec, st.Users)
	if err != nil {
		return err
	}

	handler, err := api.NewHandler(api.Deps{
		Auth:     authService,
		Reset:    resetService,
		Guard:    guard,
		Logger:   logger,
		Recorder: metrics,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	failed := make(chan error, 2)

	apiServer := deps.APIServerFactory(cfg.Server.Addr, handler.Routes(), api.ServerOptions{
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Logger:            logger,
	})
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, logger, apiErrChan, "api", failed)

	metricsStarted := false
	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopServer(logger, apiServer, "api")
			return oops.With("operation", "start observability server").Wrap(err)
		}
		metricsStarted = true
		go monitorServerErrors(ctx, cancel, logger, obsErrChan, "observability", failed)
	}

	cmd.Printf("Natours API listening on %s\n", apiServer.Addr())
	logger.InfoContext(ctx, "natours ready", "addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down")

	stopServer(logger, apiServer, "api")
	if metricsStarted {
		stopServer(logger, obsServer, "observability")
	}

	select {
	case err := <-failed:
		return oops.Code("SERVER_FAILED").Wrap(err)
	default:
	}
	logger.Info("shutdown complete")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(logger *slog.Logger, s stopper, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		errutil.LogErrorContext(ctx, logger, "error stopping server", err, "server", name)
	}
}

// monitorServerErrors forwards a server error to failed and cancels ctx. It
// exits when an error arrives, the channel is closed, or ctx is done.
func monitorServerErrors(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *slog.Logger,
	errCh <-chan error,
	serverName string,
	failed chan<- error,
) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err)
			failed <- oops.With("server", serverName).Wrap(err)
			cancel()
		}
	case <-ctx.Done():
	}
}

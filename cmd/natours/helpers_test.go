// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/api"
	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testConfig is a complete config for the memory store on ephemeral ports.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:              "127.0.0.1:0",
			PublicURL:         "http://natours.test",
			ReadHeaderTimeout: time.Second,
		},
		Metrics: config.MetricsConfig{Addr: "127.0.0.1:0"},
		Log:     config.LogConfig{Format: "text", Level: "error"},
		Store:   config.StoreMemory,
		Token:   config.TokenConfig{Secret: testSecret, TTL: time.Hour, Issuer: "natours"},
		Hash:    config.HashConfig{Time: 1, MemoryKiB: 64, Threads: 1, Workers: 2},
		Mail:    config.MailConfig{Driver: config.MailDriverLog},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isolate keeps a developer's config file and secrets out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvJWTSecret, "")
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvSMTPPassword, "")
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd, out
}

// announcingServer reports its address once Start succeeds.
type announcingServer struct {
	APIServer
	started chan string
}

func (s *announcingServer) Start() (<-chan error, error) {
	errCh, err := s.APIServer.Start()
	if err == nil {
		s.started <- s.APIServer.Addr()
	}
	return errCh, err
}

func announcingAPIFactory(started chan string) func(string, http.Handler, api.ServerOptions) APIServer {
	return func(addr string, handler http.Handler, opts api.ServerOptions) APIServer {
		return &announcingServer{APIServer: api.NewServer(addr, handler, opts), started: started}
	}
}

// failingAPIServer starts and then reports a serve error.
type failingAPIServer struct {
	err     error
	stopped bool
}

func (s *failingAPIServer) Start() (<-chan error, error) {
	errCh := make(chan error, 1)
	errCh <- s.err
	return errCh, nil
}

func (s *failingAPIServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func (s *failingAPIServer) Addr() string { return "127.0.0.1:1" }

// outbox records reset mails.
type outbox struct {
	sent chan auth.Message
}

func (o *outbox) Send(_ context.Context, msg auth.Message) error {
	o.sent <- msg
	return nil
}


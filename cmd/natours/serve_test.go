// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/api"
	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/pkg/errutil"
)

type serveRun struct {
	cancel context.CancelFunc
	done   chan error
	addr   string
}

func (r *serveRun) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func startServe(t *testing.T, cfg *config.Config, deps *ServeDeps) *serveRun {
	t.Helper()
	started := make(chan string, 1)
	deps.APIServerFactory = announcingAPIFactory(started)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	cmd, _ := newTestCommand()
	go func() { done <- runServeWithDeps(ctx, cmd, cfg, discardLogger(), deps) }()

	select {
	case addr := <-started:
		return &serveRun{cancel: cancel, done: done, addr: addr}
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("serve did not start")
	}
	return nil
}

func postJSON(t *testing.T, url, body, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(t, req)
}

func doJSON(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServe_EndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Addr = ""

	box := &outbox{sent: make(chan auth.Message, 1)}
	var obs *observability.Server
	deps := &ServeDeps{
		NotifierFactory: func(*config.Config, *slog.Logger) (auth.Notifier, error) { return box, nil },
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			obs = observability.NewServer(addr, ready)
			return obs
		},
	}
	run := startServe(t, cfg, deps)
	base := "http://" + run.addr + "/api/v1/users"

	code, body := postJSON(t, base+"/signup",
		`{"name":"Laura Wilson","email":"laura@example.com","password":"pass1234","passwordConfirm":"pass1234"}`, "")
	require.Equal(t, http.StatusCreated, code, body)
	token, ok := body["token"].(string)
	require.True(t, ok)

	req, err := http.NewRequest(http.MethodGet, base+"/me", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	code, body = doJSON(t, req)
	assert.Equal(t, http.StatusOK, code, body)

	code, body = postJSON(t, base+"/forgotPassword", `{"email":"laura@example.com"}`, "")
	assert.Equal(t, http.StatusOK, code, body)
	select {
	case msg := <-box.sent:
		assert.Equal(t, "laura@example.com", msg.To)
		assert.Contains(t, msg.Body, "http://natours.test/api/v1/users/resetPassword/")
	case <-time.After(5 * time.Second):
		t.Fatal("no reset mail sent")
	}

	rec := httptest.NewRecorder()
	obs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	metrics, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `natours_http_requests_total{code="201",route="POST /api/v1/users/signup"} 1`)
	assert.Contains(t, string(metrics), `natours_auth_events_total{operation="signup",outcome="success"} 1`)
	assert.Contains(t, string(metrics), `natours_password_hash_seconds_count{op="hash"} 1`)

	run.stop(t)
}

func TestServe_StartsAndStopsMetricsServer(t *testing.T) {
	run := startServe(t, testConfig(), &ServeDeps{})
	run.stop(t)
}

func TestServe_StoreFailure(t *testing.T) {
	deps := &ServeDeps{
		StoreFactory: func(context.Context, *config.Config, *slog.Logger) (*UserStore, error) {
			return nil, errors.New("connection refused")
		},
	}
	cmd, _ := newTestCommand()
	err := runServeWithDeps(context.Background(), cmd, testConfig(), discardLogger(), deps)
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "open user store")
}

func TestServe_NotifierFailure(t *testing.T) {
	closed := false
	deps := &ServeDeps{
		StoreFactory: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*UserStore, error) {
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			st.Close = func() { closed = true }
			return st, nil
		},
		NotifierFactory: func(*config.Config, *slog.Logger) (auth.Notifier, error) {
			return nil, errors.New("no smtp")
		},
	}
	cmd, _ := newTestCommand()
	err := runServeWithDeps(context.Background(), cmd, testConfig(), discardLogger(), deps)
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "create notifier")
	assert.True(t, closed, "store is closed on failure")
}

func TestServe_APIListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	cfg := testConfig()
	cfg.Server.Addr = busy.Addr().String()

	cmd, _ := newTestCommand()
	err = runServeWithDeps(context.Background(), cmd, cfg, discardLogger(), &ServeDeps{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "API_LISTEN_FAILED")
}

func TestServe_MetricsListenFailureStopsAPI(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	cfg := testConfig()
	cfg.Metrics.Addr = busy.Addr().String()

	cmd, _ := newTestCommand()
	err = runServeWithDeps(context.Background(), cmd, cfg, discardLogger(), &ServeDeps{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
}

func TestServe_ServerErrorTriggersShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Addr = ""
	failing := &failingAPIServer{err: errors.New("accept failed")}
	deps := &ServeDeps{
		APIServerFactory: func(string, http.Handler, api.ServerOptions) APIServer { return failing },
	}

	cmd, _ := newTestCommand()
	err := runServeWithDeps(context.Background(), cmd, cfg, discardLogger(), deps)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SERVER_FAILED")
	errutil.AssertErrorContext(t, err, "server", "api")
	assert.True(t, failing.stopped)
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("closed channel exits quietly", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)
		failed := make(chan error, 1)

		monitorServerErrors(ctx, cancel, discardLogger(), errCh, "api", failed)
		assert.NoError(t, ctx.Err())
		assert.Empty(t, failed)
	})

	t.Run("error cancels and is forwarded", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("boom")
		failed := make(chan error, 1)

		monitorServerErrors(ctx, cancel, discardLogger(), errCh, "api", failed)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
		require.Len(t, failed, 1)
	})

	t.Run("done context exits", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		failed := make(chan error, 1)

		monitorServerErrors(ctx, cancel, discardLogger(), make(chan error), "api", failed)
		assert.Empty(t, failed)
	})
}

func TestNewNotifier(t *testing.T) {
	cfg := testConfig()
	n, err := newNotifier(cfg, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, n)

	cfg.Mail = config.MailConfig{Driver: config.MailDriverSMTP, Host: "smtp.example.com", Port: 587, From: "hello@natours.dev"}
	n, err = newNotifier(cfg, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, n)

	cfg.Mail = config.MailConfig{Driver: config.MailDriverSMTP}
	_, err = newNotifier(cfg, discardLogger())
	errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")

	cfg.Mail.Driver = "sendgrid"
	_, err = newNotifier(cfg, discardLogger())
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := openStore(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	defer st.Close()
	assert.NotNil(t, st.Users)
	assert.NoError(t, st.Ready(context.Background()))
}

func TestOpenStore_UnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "mongo"
	_, err := openStore(context.Background(), cfg, discardLogger())
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/api"
	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/memory"
)

var fastParams = auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type outbox struct {
	mu   sync.Mutex
	sent []auth.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg auth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

var resetLink = regexp.MustCompile(`/api/v1/users/resetPassword/([0-9a-f]+)`)

// lastResetToken returns the secret of the most recent reset mail.
func (o *outbox) lastResetToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no reset mail sent")
	m := resetLink.FindStringSubmatch(o.sent[len(o.sent)-1].Body)
	require.Len(t, m, 2)
	return m[1]
}

type authEvent struct{ operation, outcome string }

type fakeRecorder struct {
	mu       sync.Mutex
	requests map[string]int
	events   []authEvent
}

func (r *fakeRecorder) ObserveHTTP(route string, code int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == nil {
		r.requests = make(map[string]int)
	}
	r.requests[route+" "+http.StatusText(code)]++
}

func (r *fakeRecorder) RecordAuthEvent(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, authEvent{operation, outcome})
}

type testAPI struct {
	handler  http.Handler
	users    *memory.UserRepository
	outbox   *outbox
	recorder *fakeRecorder
	clock    *testClock
	logs     *bytes.Buffer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	users := memory.NewUserRepository()
	out := &outbox{}
	rec := &fakeRecorder{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	hasher, err := auth.NewArgon2idHasherWithParams(fastParams)
	require.NoError(t, err)
	pool, err := auth.NewHashPool(hasher, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte(testSecret), TTL: time.Hour},
		auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	opts := []auth.ServiceOption{auth.WithClock(clock.Now), auth.WithLogger(logger)}
	authSvc, err := auth.NewAuthService(users, pool, codec, opts...)
	require.NoError(t, err)
	resetSvc, err := auth.NewPasswordResetService(users, pool, codec, out, auth.ResetLinkFor("http://natours.test"), opts...)
	require.NoError(t, err)
	guard, err := auth.NewGuard(codec, users)
	require.NoError(t, err)

	h, err := api.NewHandler(api.Deps{
		Auth:     authSvc,
		Reset:    resetSvc,
		Guard:    guard,
		Logger:   logger,
		Recorder: rec,
	})
	require.NoError(t, err)

	return &testAPI{handler: h.Routes(), users: users, outbox: out, recorder: rec, clock: clock, logs: logs}
}

type response struct {
	code    int
	header  http.Header
	raw     string
	Status  string          `json:"status"`
	Token   string          `json:"token"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type userPayload struct {
	User map[string]any `json:"user"`
}

func (r *response) user(t *testing.T) map[string]any {
	t.Helper()
	var p userPayload
	require.NoError(t, json.Unmarshal(r.Data, &p))
	require.NotNil(t, p.User)
	return p.User
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *response {
	t.Helper()
	authorization := ""
	if token != "" {
		authorization = "Bearer " + token
	}
	return a.doRaw(t, method, path, authorization, body)
}

// doRaw sends authorization as the Authorization header verbatim.
func (a *testAPI) doRaw(t *testing.T, method, path, authorization string, body any) *response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	resp := &response{code: rec.Code, header: rec.Header(), raw: rec.Body.String()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp), "body: %s", rec.Body.String())
	}
	return resp
}

func (a *testAPI) signup(t *testing.T, email, role string) *response {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/users/signup", "", map[string]string{
		"name":            "Laura Wilson",
		"email":           email,
		"password":        "pass1234",
		"passwordConfirm": "pass1234",
		"role":            role,
	})
	require.Equal(t, http.StatusCreated, resp.code, resp.Message)
	return resp
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/pkg/errutil"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady(t *testing.T) {
	ctx := context.Background()
	opts := ConnectOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		p := &flakyPinger{failures: 2}
		require.NoError(t, WaitReady(ctx, p, opts))
		assert.Equal(t, 3, p.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		p := &flakyPinger{failures: 10}
		err := WaitReady(ctx, p, opts)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
		errutil.AssertErrorContext(t, err, "attempts", 3)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		p := &flakyPinger{failures: 10}
		err := WaitReady(canceled, p, ConnectOptions{MaxAttempts: 5, InitialBackoff: time.Hour})
		require.Error(t, err)
		assert.LessOrEqual(t, p.calls, 1)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::", ConnectOptions{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

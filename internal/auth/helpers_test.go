// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
)

// fastParams keep argon2 cheap enough for unit tests.
var fastParams = auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func newFastHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	hasher, err := auth.NewArgon2idHasherWithParams(fastParams)
	require.NoError(t, err)
	return hasher
}

// testClock is a settable clock for services and codecs.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T, clock *testClock) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret: []byte(testSecret),
		TTL:    90 * 24 * time.Hour,
	}, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)
	return codec
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinTokenSecretLength is the shortest accepted HS256 signing secret.
const MinTokenSecretLength = 32

// DefaultTokenIssuer is the iss claim used when none is configured.
const DefaultTokenIssuer = "natours"

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	SubjectID ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the signed payload. iat_us carries the issue time at the
// precision of stored password change times; iat alone has whole seconds.
type tokenClaims struct {
	jwt.RegisteredClaims
	IssuedAtMicros int64 `json:"iat_us"`
}

// TokenIssuer issues bearer tokens.
type TokenIssuer interface {
	Issue(subjectID ulid.ULID) (string, error)
}

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*TokenClaims, error)
}

// TokenCodec signs and verifies HS256 bearer tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTokenClock overrides the clock used to issue and verify tokens.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec validates cfg and returns a codec. An invalid configuration
// is a startup error.
func NewTokenCodec(cfg TokenConfig, opts ...TokenOption) (*TokenCodec, error) {
	if len(cfg.Secret) < MinTokenSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinTokenSecretLength).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token ttl must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultTokenIssuer
	}

	c := &TokenCodec{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Issue returns a signed token for subjectID.
func (c *TokenCodec) Issue(subjectID ulid.ULID) (string, error) {
	now := c.now().UTC().Truncate(time.Microsecond)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		IssuedAtMicros: now.UnixMicro(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", internalError("TOKEN_SIGN_FAILED", "sign token", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, issuer and lifetime of token.
func (c *TokenCodec) Verify(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, authenticationError("AUTH_TOKEN_INVALID", "invalid token, please log in again")
	}

	claims := &tokenClaims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authenticationError("AUTH_TOKEN_EXPIRED", "your token has expired, please log in again")
		}
		return nil, authenticationError("AUTH_TOKEN_INVALID", "invalid token, please log in again")
	}

	subjectID, err := ulid.Parse(claims.Subject)
	if err != nil || claims.IssuedAt == nil {
		return nil, authenticationError("AUTH_TOKEN_INVALID", "invalid token, please log in again")
	}
	issuedAt := time.UnixMicro(claims.IssuedAtMicros).UTC()
	if claims.IssuedAtMicros <= 0 || issuedAt.Unix() != claims.IssuedAt.Unix() {
		return nil, authenticationError("AUTH_TOKEN_INVALID", "invalid token, please log in again")
	}

	return &TokenClaims{
		SubjectID: subjectID,
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

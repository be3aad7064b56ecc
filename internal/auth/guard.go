// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("natours/auth")

// Identity is an authenticated user. Only Guard.Protect creates one, so any
// code holding an Identity runs after authentication.
type Identity struct {
	userID   ulid.ULID
	email    string
	role     Role
	issuedAt time.Time
}

// UserID returns the authenticated user's ID.
func (i *Identity) UserID() ulid.ULID { return i.userID }

// Email returns the authenticated user's email.
func (i *Identity) Email() string { return i.email }

// Role returns the authenticated user's role.
func (i *Identity) Role() Role { return i.role }

// IssuedAt returns when the presented token was issued.
func (i *Identity) IssuedAt() time.Time { return i.issuedAt }

// Guard authenticates bearer tokens against the user directory.
type Guard struct {
	tokens TokenVerifier
	users  UserRepository
}

// NewGuard creates a new Guard.
func NewGuard(tokens TokenVerifier, users UserRepository) (*Guard, error) {
	if tokens == nil {
		return nil, oops.Code("GUARD_INVALID").Errorf("token verifier is required")
	}
	if users == nil {
		return nil, oops.Code("GUARD_INVALID").Errorf("user repository is required")
	}
	return &Guard{tokens: tokens, users: users}, nil
}

// Protect authenticates the value of an Authorization header.
func (g *Guard) Protect(ctx context.Context, authorization string) (identity *Identity, err error) {
	ctx, span := tracer.Start(ctx, "auth.protect")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	token, ok := BearerToken(authorization)
	if !ok {
		return nil, authenticationError("AUTH_NOT_LOGGED_IN", "you are not logged in, please log in to get access")
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", claims.SubjectID.String()))

	user, err := g.users.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, authenticationError("AUTH_USER_GONE", "the user belonging to this token no longer exists")
		}
		return nil, internalError("AUTH_PROTECT_FAILED", "get user by id", err)
	}

	if user.ChangedPasswordAfter(claims.IssuedAt) {
		return nil, authenticationError("AUTH_TOKEN_STALE", "password recently changed, please log in again")
	}

	return newIdentity(user, claims.IssuedAt), nil
}

func newIdentity(user *User, issuedAt time.Time) *Identity {
	return &Identity{
		userID:   user.ID,
		email:    user.Email,
		role:     user.Role,
		issuedAt: issuedAt,
	}
}

// RestrictTo allows identity only if its role is one of roles.
func RestrictTo(identity *Identity, roles ...Role) error {
	if identity == nil {
		return authenticationError("AUTH_NOT_LOGGED_IN", "you are not logged in, please log in to get access")
	}
	if !slices.Contains(roles, identity.role) {
		return authorizationError("AUTH_FORBIDDEN", "you do not have permission to perform this action")
	}
	return nil
}

// BearerToken extracts the token of a "Bearer <token>" header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}

	return token, true
}

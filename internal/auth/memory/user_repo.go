// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package memory provides an in-memory user directory for tests and
// development.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
)

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository is a mutex-guarded auth.UserRepository. Stored users are
// copied on the way in and out so callers cannot mutate them in place.
type UserRepository struct {
	mu          sync.RWMutex
	users       map[ulid.ULID]*auth.User
	byEmail     map[string]ulid.ULID
	byResetHash map[string]ulid.ULID
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:       make(map[ulid.ULID]*auth.User),
		byEmail:     make(map[string]ulid.ULID),
		byResetHash: make(map[string]ulid.ULID),
	}
}

func notFound(key string, value any) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return oops.Code("USER_EMAIL_CONFLICT").With("email", email).Wrap(auth.ErrConflict)
	}
	if _, taken := r.users[user.ID]; taken {
		return oops.Code("USER_ID_CONFLICT").With("user_id", user.ID.String()).Wrap(auth.ErrConflict)
	}

	if user.PasswordResetTokenHash != nil {
		if _, taken := r.byResetHash[*user.PasswordResetTokenHash]; taken {
			return oops.Code("USER_RESET_CONFLICT").With("user_id", user.ID.String()).Wrap(auth.ErrConflict)
		}
	}

	r.put(clone(user))
	r.byEmail[email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, notFound("user_id", id.String())
	}
	return clone(user), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, notFound("email", email)
	}
	return clone(r.users[id]), nil
}

// GetByResetTokenHash retrieves the user holding an unexpired reset.
func (r *UserRepository) GetByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user := r.findReset(tokenHash, now); user != nil {
		return clone(user), nil
	}
	return nil, notFound("operation", "get by reset token hash")
}

func (r *UserRepository) findReset(tokenHash string, now time.Time) *auth.User {
	id, ok := r.byResetHash[tokenHash]
	if !ok {
		return nil
	}
	if user := r.users[id]; user.HasPendingReset(tokenHash, now) {
		return user
	}
	return nil
}

// put stores user and keeps the reset index in step with its reset hash.
func (r *UserRepository) put(user *auth.User) {
	if existing, ok := r.users[user.ID]; ok {
		r.unindexReset(existing)
	}
	r.users[user.ID] = user
	if user.PasswordResetTokenHash != nil {
		r.byResetHash[*user.PasswordResetTokenHash] = user.ID
	}
}

func (r *UserRepository) unindexReset(user *auth.User) {
	if user.PasswordResetTokenHash != nil && r.byResetHash[*user.PasswordResetTokenHash] == user.ID {
		delete(r.byResetHash, *user.PasswordResetTokenHash)
	}
}

// Update saves every mutable field of an existing user.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return notFound("user_id", user.ID.String())
	}

	oldEmail := strings.ToLower(existing.Email)
	newEmail := strings.ToLower(user.Email)
	if newEmail != oldEmail {
		if _, taken := r.byEmail[newEmail]; taken {
			return oops.Code("USER_EMAIL_CONFLICT").With("email", newEmail).Wrap(auth.ErrConflict)
		}
	}
	if user.PasswordResetTokenHash != nil {
		if owner, taken := r.byResetHash[*user.PasswordResetTokenHash]; taken && owner != user.ID {
			return oops.Code("USER_RESET_CONFLICT").With("user_id", user.ID.String()).Wrap(auth.ErrConflict)
		}
	}
	if newEmail != oldEmail {
		delete(r.byEmail, oldEmail)
		r.byEmail[newEmail] = user.ID
	}

	r.put(clone(user))
	return nil
}

// UpdatePasswordHash swaps the password hash if it still equals oldHash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.PasswordHash != oldHash {
		return false, nil
	}
	user.PasswordHash = newHash
	user.UpdatedAt = now
	return true, nil
}

// SetPasswordReset stores a reset hash and its expiry.
func (r *UserRepository) SetPasswordReset(_ context.Context, id ulid.ULID, tokenHash string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return notFound("user_id", id.String())
	}
	if owner, taken := r.byResetHash[tokenHash]; taken && owner != id {
		return oops.Code("USER_RESET_CONFLICT").With("user_id", id.String()).Wrap(auth.ErrConflict)
	}
	r.unindexReset(user)
	user.SetPasswordReset(tokenHash, expires)
	r.byResetHash[tokenHash] = id
	return nil
}

// ClearPasswordReset removes both reset fields.
func (r *UserRepository) ClearPasswordReset(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return notFound("user_id", id.String())
	}
	r.unindexReset(user)
	user.ClearPasswordReset()
	return nil
}

// RedeemPasswordReset replaces the password of the user holding the reset.
func (r *UserRepository) RedeemPasswordReset(_ context.Context, tokenHash, passwordHash string, now time.Time) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findReset(tokenHash, now)
	if user == nil {
		return nil, notFound("operation", "redeem password reset")
	}
	r.unindexReset(user)
	user.SetPassword(passwordHash, now)
	return clone(user), nil
}

// Delete removes a user.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return notFound("user_id", id.String())
	}
	r.unindexReset(user)
	delete(r.byEmail, strings.ToLower(user.Email))
	delete(r.users, id)
	return nil
}

func clone(user *auth.User) *auth.User {
	c := *user
	if user.PasswordChangedAt != nil {
		t := *user.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if user.PasswordResetTokenHash != nil {
		h := *user.PasswordResetTokenHash
		c.PasswordResetTokenHash = &h
	}
	if user.PasswordResetExpires != nil {
		t := *user.PasswordResetExpires
		c.PasswordResetExpires = &t
	}
	return &c
}

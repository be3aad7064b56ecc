// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package postgres implements the user directory on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
)

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// Pool is the subset of pgxpool.Pool used by the repository. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, photo, password_hash, role,
	password_changed_at, password_reset_token_hash, password_reset_expires,
	created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.Photo,
		user.PasswordHash,
		string(user.Role),
		user.PasswordChangedAt,
		user.PasswordResetTokenHash,
		user.PasswordResetExpires,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_EMAIL_CONFLICT").
				With("email", user.Email).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// GetByResetTokenHash retrieves the user holding an unexpired reset.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE password_reset_token_hash = $1 AND password_reset_expires > $2
	`, tokenHash, now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_RESET_FAILED").
			With("operation", "get user by reset token hash").
			Wrap(err)
	}
	return user, nil
}

// Update saves every mutable field of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			name = $2,
			email = $3,
			photo = $4,
			password_hash = $5,
			role = $6,
			password_changed_at = $7,
			password_reset_token_hash = $8,
			password_reset_expires = $9,
			updated_at = $10
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.Photo,
		user.PasswordHash,
		string(user.Role),
		user.PasswordChangedAt,
		user.PasswordResetTokenHash,
		user.PasswordResetExpires,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_EMAIL_CONFLICT").
				With("email", user.Email).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash swaps the password hash if it still equals oldHash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $3, updated_at = $4
		WHERE id = $1 AND password_hash = $2
	`, id.String(), oldHash, newHash, now)
	if err != nil {
		return false, oops.Code("USER_UPDATE_HASH_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// SetPasswordReset stores a reset hash and its expiry in one statement.
func (r *UserRepository) SetPasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, expires time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_reset_token_hash = $2, password_reset_expires = $3
		WHERE id = $1
	`, id.String(), tokenHash, expires)
	if err != nil {
		return oops.Code("USER_SET_RESET_FAILED").
			With("operation", "set password reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearPasswordReset removes both reset fields in one statement.
func (r *UserRepository) ClearPasswordReset(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_reset_token_hash = NULL, password_reset_expires = NULL
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("USER_CLEAR_RESET_FAILED").
			With("operation", "clear password reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RedeemPasswordReset replaces the password of the user holding an
// unexpired reset and clears the reset, in one conditional statement.
func (r *UserRepository) RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*auth.User, error) {
	changedAt := auth.AdvancePasswordChangedAt(nil, now)
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			password_changed_at = GREATEST(COALESCE(password_changed_at, $3), $3),
			password_reset_token_hash = NULL,
			password_reset_expires = NULL,
			updated_at = $4
		WHERE password_reset_token_hash = $1 AND password_reset_expires > $4
		RETURNING `+userColumns,
		tokenHash, passwordHash, *changedAt, now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_REDEEM_RESET_FAILED").
			With("operation", "redeem password reset").
			Wrap(err)
	}
	return user, nil
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr   string
		role    string
		user    auth.User
		changed *time.Time
		resetH  *string
		resetE  *time.Time
	)

	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.Photo,
		&user.PasswordHash,
		&role,
		&changed,
		&resetH,
		&resetE,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	user.ID = id
	user.Role = auth.Role(role)
	user.PasswordChangedAt = changed
	user.PasswordResetTokenHash = resetH
	user.PasswordResetExpires = resetE
	return &user, nil
}

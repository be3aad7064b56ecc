// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Password validation constraints.
const (
	MinPasswordLength = 8
	// MaxPasswordLength matches the bcrypt input limit so imported and
	// native accounts follow the same rules.
	MaxPasswordLength = 72
)

// DefaultPhoto is assigned to users created without a photo.
const DefaultPhoto = "default.jpg"

// Role is a user's authorization level.
type Role string

// Known roles.
const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}

// ParseRole converts s into a Role. An empty string yields RoleUser.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleUser, nil
	}
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", validationError("AUTH_INVALID_ROLE", "role must be one of user, guide, lead-guide, admin")
}

// User is an account of the marketplace.
type User struct {
	ID                     ulid.ULID
	Name                   string
	Email                  string
	Photo                  string
	PasswordHash           string
	Role                   Role
	PasswordChangedAt      *time.Time
	PasswordResetTokenHash *string
	PasswordResetExpires   *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewUser validates its inputs and returns a user ready to be stored.
func NewUser(name, email, passwordHash string, role Role, now time.Time) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("AUTH_INVALID_NAME", "please tell us your name")
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, validationError("AUTH_EMPTY_PASSWORD", "password cannot be empty")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleUser
	}

	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        normalized,
		Photo:        DefaultPhoto,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func parseUserID(id string) (ulid.ULID, error) {
	userID, err := ulid.ParseStrict(id)
	if err != nil {
		return ulid.ULID{}, validationError("USER_INVALID_ID", "invalid user id: %s", id)
	}
	return userID, nil
}

// lookupEmail folds an address the way stored emails are folded. It does
// not validate, so malformed input simply finds no user.
func lookupEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeEmail validates an address and returns its lowercase form.
func NormalizeEmail(email string) (string, error) {
	email = lookupEmail(email)
	if email == "" {
		return "", validationError("AUTH_INVALID_EMAIL", "please provide your email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", validationError("AUTH_INVALID_EMAIL", "please provide a valid email")
	}
	return email, nil
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	if password == "" {
		return validationError("AUTH_INVALID_PASSWORD", "please provide a password")
	}
	if len(password) < MinPasswordLength {
		return validationError("AUTH_INVALID_PASSWORD",
			"password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return validationError("AUTH_INVALID_PASSWORD",
			"password must be at most %d bytes", MaxPasswordLength)
	}
	if password != confirm {
		return validationError("AUTH_PASSWORD_MISMATCH", "passwords are not the same")
	}
	return nil
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at issuedAt. Both times carry microseconds.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Before(*u.PasswordChangedAt)
}

// SetPassword stores a new hash, advances PasswordChangedAt and clears any
// outstanding reset.
func (u *User) SetPassword(hash string, now time.Time) {
	u.PasswordHash = hash
	u.PasswordChangedAt = AdvancePasswordChangedAt(u.PasswordChangedAt, now)
	u.ClearPasswordReset()
	u.UpdatedAt = now
}

// AdvancePasswordChangedAt returns the new PasswordChangedAt for a password
// written at now, at the microsecond precision PostgreSQL stores. The value
// never moves backwards.
func AdvancePasswordChangedAt(current *time.Time, now time.Time) *time.Time {
	changed := now.UTC().Truncate(time.Microsecond)
	if current != nil && current.After(changed) {
		changed = *current
	}
	return &changed
}

// SetPasswordReset records an outstanding reset.
func (u *User) SetPasswordReset(tokenHash string, expires time.Time) {
	u.PasswordResetTokenHash = &tokenHash
	u.PasswordResetExpires = &expires
}

// ClearPasswordReset drops any outstanding reset.
func (u *User) ClearPasswordReset() {
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpires = nil
}

// HasPendingReset reports whether tokenHash names an unexpired reset.
func (u *User) HasPendingReset(tokenHash string, now time.Time) bool {
	if u.PasswordResetTokenHash == nil || u.PasswordResetExpires == nil {
		return false
	}
	return VerifyResetTokenHash(*u.PasswordResetTokenHash, tokenHash) && now.Before(*u.PasswordResetExpires)
}

// UserRepository is the user directory.
type UserRepository interface {
	// Create stores a new user. Returns an error wrapping ErrConflict if
	// the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetTokenHash retrieves the user holding an unexpired reset
	// with the given hash.
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*User, error)

	// Update saves every mutable field of an existing user.
	Update(ctx context.Context, user *User) error

	// UpdatePasswordHash replaces the stored hash only while it still equals
	// oldHash. PasswordChangedAt and the reset fields are left untouched.
	// Reports whether the hash was replaced.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) (bool, error)

	// SetPasswordReset stores a reset hash and its expiry in one write.
	SetPasswordReset(ctx context.Context, id ulid.ULID, tokenHash string, expires time.Time) error

	// ClearPasswordReset removes both reset fields in one write.
	ClearPasswordReset(ctx context.Context, id ulid.ULID) error

	// RedeemPasswordReset replaces the password of the user holding an
	// unexpired reset with tokenHash, clearing the reset. Returns ErrNotFound
	// if no such reset exists anymore.
	RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*User, error)

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error
}

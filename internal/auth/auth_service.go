// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SignupRequest holds the fields accepted at signup.
type SignupRequest struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	// Role is stored as given. Callers exposing signup publicly decide
	// which roles may be self-assigned.
	Role string
}

// ServiceOption configures Service and PasswordResetService.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

func applyServiceOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Service provides signup, login and password change.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer is required")
	}
	o := applyServiceOptions(opts)
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		now:    o.now,
		logger: o.logger,
	}, nil
}

// Signup creates an account and returns it with a fresh token.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*User, string, error) {
	ctx, span := tracer.Start(ctx, "auth.signup")
	defer span.End()

	role, err := ParseRole(req.Role)
	if err != nil {
		return nil, "", err
	}
	if err := ValidatePassword(req.Password, req.PasswordConfirm); err != nil {
		return nil, "", err
	}
	// Validate the remaining fields before paying for a hash.
	if _, err := NewUser(req.Name, req.Email, dummyPasswordHash, role, s.now()); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, "", internalError("AUTH_SIGNUP_FAILED", "hash password", err)
	}

	user, err := NewUser(req.Name, req.Email, hash, role, s.now())
	if err != nil {
		return nil, "", err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, "", conflictError("AUTH_EMAIL_TAKEN", "an account with this email already exists")
		}
		return nil, "", internalError("AUTH_SIGNUP_FAILED", "create user", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", internalError("AUTH_SIGNUP_FAILED", "issue token", err)
	}

	return user, token, nil
}

// Login authenticates an email and password and returns a fresh token.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	email = lookupEmail(email)
	if email == "" || password == "" {
		return nil, "", validationError("AUTH_MISSING_CREDENTIALS", "please provide email and password")
	}

	// Look up user by email
	user, lookupErr := s.users.GetByEmail(ctx, email)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	targetHash := dummyPasswordHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, "", internalError("AUTH_LOGIN_FAILED", "get user by email", lookupErr)
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(ctx, password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, "", invalidCredentials()
		}
		return nil, "", internalError("AUTH_LOGIN_FAILED", "verify password", verifyErr)
	}
	if !userExists || !valid {
		return nil, "", invalidCredentials()
	}

	s.upgradeHash(ctx, user, password)

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", internalError("AUTH_LOGIN_FAILED", "issue token", err)
	}

	return user, token, nil
}

func invalidCredentials() error {
	return authenticationError("AUTH_INVALID_CREDENTIALS", "incorrect email or password")
}

// upgradeHash rehashes a verified password whose stored hash is outdated.
// Login succeeds even if the upgrade fails.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID.String(), "error", err)
		return
	}
	// A rehash is not a password change; PasswordChangedAt stays as is. The
	// swap loses to any password write since the user was read.
	swapped, err := s.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash, newHash, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "failed to store upgraded password hash", "user_id", user.ID.String(), "error", err)
		return
	}
	if !swapped {
		s.logger.InfoContext(ctx, "password changed during login, hash upgrade skipped", "user_id", user.ID.String())
		return
	}
	user.PasswordHash = newHash
}

// UpdatePassword changes the password of the authenticated user after
// checking the current one, and returns a fresh token. Tokens issued before
// the change become stale.
func (s *Service) UpdatePassword(ctx context.Context, identity *Identity, current, password, confirm string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.update_password")
	defer span.End()

	if identity == nil {
		return "", authenticationError("AUTH_NOT_LOGGED_IN", "you are not logged in, please log in to get access")
	}
	if current == "" {
		return "", validationError("AUTH_MISSING_CREDENTIALS", "please provide your current password")
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return "", err
	}

	user, err := s.users.GetByID(ctx, identity.UserID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", authenticationError("AUTH_USER_GONE", "the user belonging to this token no longer exists")
		}
		return "", internalError("AUTH_UPDATE_PASSWORD_FAILED", "get user by id", err)
	}

	valid, err := s.hasher.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		return "", internalError("AUTH_UPDATE_PASSWORD_FAILED", "verify password", err)
	}
	if !valid {
		return "", authenticationError("AUTH_WRONG_PASSWORD", "your current password is wrong")
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return "", internalError("AUTH_UPDATE_PASSWORD_FAILED", "hash password", err)
	}

	user.SetPassword(hash, s.now())
	if err := s.users.Update(ctx, user); err != nil {
		return "", internalError("AUTH_UPDATE_PASSWORD_FAILED", "update user", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", internalError("AUTH_UPDATE_PASSWORD_FAILED", "issue token", err)
	}
	return token, nil
}

// Me returns the authenticated user.
func (s *Service) Me(ctx context.Context, identity *Identity) (*User, error) {
	if identity == nil {
		return nil, authenticationError("AUTH_NOT_LOGGED_IN", "you are not logged in, please log in to get access")
	}
	return s.GetUser(ctx, identity.UserID().String())
}

// GetUser returns the user with the given ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	userID, err := parseUserID(id)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFoundError("USER_NOT_FOUND", "no user found with that id")
		}
		return nil, internalError("AUTH_GET_USER_FAILED", "get user by id", err)
	}
	return user, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Reset email content.
const (
	resetEmailSubject = "Your password reset token (valid for 10 min)"
	resetEmailBody    = "Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\n" +
		"If you didn't forget your password, please ignore this email!"
)

// PasswordResetService handles the forgot/reset password flow.
type PasswordResetService struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	notifier Notifier
	link     ResetLinkFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	notifier Notifier,
	link ResetLinkFunc,
	opts ...ServiceOption,
) (*PasswordResetService, error) {
	switch {
	case users == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	case hasher == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	case tokens == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("token issuer is required")
	case notifier == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("notifier is required")
	case link == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("reset link builder is required")
	}
	o := applyServiceOptions(opts)
	return &PasswordResetService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		link:     link,
		now:      o.now,
		logger:   o.logger,
	}, nil
}

// ForgotPassword stores a reset for the account with email and mails the
// plaintext token to it. If the mail cannot be sent the stored reset is
// removed again.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer span.End()

	email = lookupEmail(email)
	if email == "" {
		return validationError("RESET_MISSING_EMAIL", "please provide your email")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFoundError("RESET_USER_NOT_FOUND", "there is no user with that email address")
		}
		return internalError("RESET_REQUEST_FAILED", "GetByEmail", err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return internalError("RESET_REQUEST_FAILED", "GenerateResetToken", err)
	}

	expires := s.now().Add(ResetTokenExpiry)
	if err := s.users.SetPasswordReset(ctx, user.ID, hash, expires); err != nil {
		return internalError("RESET_REQUEST_FAILED", "SetPasswordReset", err)
	}

	msg := Message{
		To:      user.Email,
		Subject: resetEmailSubject,
		Body:    fmt.Sprintf(resetEmailBody, s.link(token)),
	}
	if sendErr := s.notifier.Send(ctx, msg); sendErr != nil {
		// The rollback must run even if the request was canceled.
		rollbackCtx := context.WithoutCancel(ctx)
		if err := s.users.ClearPasswordReset(rollbackCtx, user.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to roll back password reset",
				"user_id", user.ID.String(),
				"error", err)
		}
		return oops.Code("RESET_EMAIL_FAILED").
			In(string(KindInternal)).
			With("operation", "Send").
			With("user_id", user.ID.String()).
			Wrapf(sendErr, "there was an error sending the email, try again later")
	}

	return nil
}

// ResetPassword redeems a reset token, sets the new password and returns
// the user with a fresh token. A token can be redeemed once.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, password, confirm string) (*User, string, error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer span.End()

	if err := ValidatePassword(password, confirm); err != nil {
		return nil, "", err
	}
	if token == "" {
		return nil, "", invalidResetToken()
	}

	now := s.now()
	hash := HashResetToken(token)

	// Cheap lookup first so unknown tokens never cost a password hash.
	if _, err := s.users.GetByResetTokenHash(ctx, hash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", invalidResetToken()
		}
		return nil, "", internalError("RESET_PASSWORD_FAILED", "GetByResetTokenHash", err)
	}

	passwordHash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, "", internalError("RESET_PASSWORD_FAILED", "Hash", err)
	}

	// Redeem is conditional on the reset still being pending, so a
	// concurrent redeem of the same token fails here.
	user, err := s.users.RedeemPasswordReset(ctx, hash, passwordHash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", invalidResetToken()
		}
		return nil, "", internalError("RESET_PASSWORD_FAILED", "RedeemPasswordReset", err)
	}

	accessToken, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", internalError("RESET_PASSWORD_FAILED", "Issue", err)
	}

	return user, accessToken, nil
}

func invalidResetToken() error {
	return authenticationError("RESET_TOKEN_INVALID", "token is invalid or has expired")
}

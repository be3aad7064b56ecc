// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package auth provides authentication and authorization for Natours.
//
// # Primitives
//
//   - TokenCodec - signs and verifies HS256 bearer tokens
//   - Argon2idHasher - salted password hashing, accepts legacy bcrypt hashes
//   - HashPool - runs a PasswordHasher on a bounded set of workers
//   - GenerateResetToken / HashResetToken - one-time reset secrets
//
// # Services
//
//   - Service - signup, login, password change
//   - Guard - authenticates bearer tokens and yields an Identity
//   - PasswordResetService - forgot/reset password flow
//
// RestrictTo takes the Identity returned by Guard.Protect, so a role check
// cannot run before authentication.
//
// # Errors
//
// Expected failures are oops errors with a stable code and a Kind. KindOf
// recovers the Kind and Kind.HTTPStatus maps it to a response status.
// Repository implementations signal missing rows with ErrNotFound and
// duplicate emails with ErrConflict.
package auth

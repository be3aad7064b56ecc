// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package seed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
)

// Result counts what Import or Delete did.
type Result struct {
	Created int
	Skipped int
	Deleted int
	Missing int
}

// Importer writes seed users to the user directory.
type Importer struct {
	users  auth.UserRepository
	hasher auth.PasswordHasher
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock sets the time source for created accounts.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) { im.logger = logger }
}

// NewImporter creates an Importer.
func NewImporter(users auth.UserRepository, hasher auth.PasswordHasher, opts ...Option) (*Importer, error) {
	if users == nil {
		return nil, oops.Code("SEED_IMPORTER_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("SEED_IMPORTER_INVALID").Errorf("password hasher is required")
	}
	im := &Importer{
		users:  users,
		hasher: hasher,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im, nil
}

// Import creates every user of f whose email is not taken yet. Existing
// accounts are left untouched, so running Import twice is harmless.
func (im *Importer) Import(ctx context.Context, f *File) (Result, error) {
	var res Result
	for i := range f.Users {
		created, err := im.importUser(ctx, &f.Users[i])
		if err != nil {
			return res, oops.With("index", i).With("email", f.Users[i].Email).Wrap(err)
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}
	im.logger.InfoContext(ctx, "seed import finished",
		"created", res.Created,
		"skipped", res.Skipped)
	return res, nil
}

func (im *Importer) importUser(ctx context.Context, su *User) (bool, error) {
	if _, err := im.users.GetByEmail(ctx, su.Email); err == nil {
		im.logger.DebugContext(ctx, "seed user exists, skipping", "email", su.Email)
		return false, nil
	} else if !errors.Is(err, auth.ErrNotFound) {
		return false, oops.Code("SEED_IMPORT_FAILED").With("operation", "GetByEmail").Wrap(err)
	}

	hash := su.PasswordHash
	if su.Password != "" {
		var err error
		if hash, err = im.hasher.Hash(ctx, su.Password); err != nil {
			return false, oops.Code("SEED_IMPORT_FAILED").With("operation", "Hash").Wrap(err)
		}
	}

	user, err := auth.NewUser(su.Name, su.Email, hash, auth.Role(su.Role), im.now())
	if err != nil {
		return false, oops.Code("SEED_IMPORT_FAILED").With("operation", "NewUser").Wrap(err)
	}
	if su.Photo != "" {
		user.Photo = su.Photo
	}

	if err := im.users.Create(ctx, user); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			return false, nil
		}
		return false, oops.Code("SEED_IMPORT_FAILED").With("operation", "Create").Wrap(err)
	}
	im.logger.DebugContext(ctx, "seed user created",
		"email", user.Email,
		"user_id", user.ID.String(),
		"role", string(user.Role))
	return true, nil
}

// Delete removes every user of f. Emails with no account are counted as
// missing. Accounts not listed in f are never touched.
func (im *Importer) Delete(ctx context.Context, f *File) (Result, error) {
	var res Result
	for i := range f.Users {
		email := f.Users[i].Email
		user, err := im.users.GetByEmail(ctx, email)
		if errors.Is(err, auth.ErrNotFound) {
			res.Missing++
			continue
		}
		if err != nil {
			return res, oops.Code("SEED_DELETE_FAILED").
				With("operation", "GetByEmail").
				With("email", email).
				Wrap(err)
		}
		if err := im.users.Delete(ctx, user.ID); err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				res.Missing++
				continue
			}
			return res, oops.Code("SEED_DELETE_FAILED").
				With("operation", "Delete").
				With("email", email).
				Wrap(err)
		}
		res.Deleted++
	}
	im.logger.InfoContext(ctx, "seed delete finished",
		"deleted", res.Deleted,
		"missing", res.Missing)
	return res, nil
}

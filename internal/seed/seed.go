// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package seed loads development users from a YAML or JSON file.
//
// A seed file looks like:
//
//	version: 1.0.0
//	users:
//	  - name: Laura Wilson
//	    email: laura@example.com
//	    role: admin
//	    password: test1234
//	  - name: Leo Gillespie
//	    email: leo@example.com
//	    password_hash: $2a$12$...
//
// Each user carries either a plaintext password, which is hashed on import,
// or a password_hash in bcrypt or argon2id form, which is stored as is.
package seed

import (
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/natours/natours/internal/auth"
)

// SupportedVersions is the range of file format versions this build reads.
const SupportedVersions = "^1.0.0"

// File is a parsed seed file.
type File struct {
	Version string `yaml:"version" json:"version" jsonschema:"description=Seed file format version (semver)"`
	Users   []User `yaml:"users" json:"users" jsonschema:"minItems=1"`
}

// User is one account in a seed file.
type User struct {
	Name         string `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Email        string `yaml:"email" json:"email" jsonschema:"minLength=3"`
	Role         string `yaml:"role,omitempty" json:"role,omitempty" jsonschema:"enum=user,enum=guide,enum=lead-guide,enum=admin"`
	Photo        string `yaml:"photo,omitempty" json:"photo,omitempty"`
	Password     string `yaml:"password,omitempty" json:"password,omitempty" jsonschema:"minLength=8,maxLength=72"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"password_hash,omitempty" jsonschema:"minLength=1"`
}

// ReadFile reads and parses the seed file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return f, nil
}

// Parse checks data against the seed schema, decodes it and validates the
// result.
func Parse(data []byte) (*File, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_INVALID").Wrapf(err, "invalid YAML")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the constraints the schema cannot express.
func (f *File) Validate() error {
	v, err := semver.StrictNewVersion(f.Version)
	if err != nil {
		return oops.Code("SEED_INVALID_VERSION").
			With("version", f.Version).
			Errorf("version %q is not a semantic version", f.Version)
	}
	supported, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return oops.Code("SEED_INVALID_VERSION").Wrap(err)
	}
	if !supported.Check(v) {
		return oops.Code("SEED_UNSUPPORTED_VERSION").
			With("version", f.Version).
			With("supported", SupportedVersions).
			Errorf("seed file version %s is not supported, want %s", f.Version, SupportedVersions)
	}

	if len(f.Users) == 0 {
		return oops.Code("SEED_INVALID").Errorf("seed file has no users")
	}

	seen := make(map[string]int, len(f.Users))
	for i := range f.Users {
		u := &f.Users[i]
		if err := u.validate(); err != nil {
			return oops.With("index", i).With("email", u.Email).Wrap(err)
		}
		email, _ := auth.NormalizeEmail(u.Email) //nolint:errcheck // validated above
		if first, dup := seen[email]; dup {
			return oops.Code("SEED_DUPLICATE_EMAIL").
				With("index", i).
				With("first_index", first).
				Errorf("email %s appears more than once", email)
		}
		seen[email] = i
	}
	return nil
}

func (u *User) validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return oops.Code("SEED_INVALID").Errorf("name is required")
	}
	if _, err := auth.NormalizeEmail(u.Email); err != nil {
		return oops.Code("SEED_INVALID").Wrapf(err, "invalid email %q", u.Email)
	}
	if _, err := auth.ParseRole(u.Role); err != nil {
		return oops.Code("SEED_INVALID").Wrapf(err, "invalid role %q", u.Role)
	}

	switch {
	case u.Password == "" && u.PasswordHash == "":
		return oops.Code("SEED_INVALID").Errorf("one of password or password_hash is required")
	case u.Password != "" && u.PasswordHash != "":
		return oops.Code("SEED_INVALID").Errorf("password and password_hash are mutually exclusive")
	case u.Password != "":
		if err := auth.ValidatePassword(u.Password, u.Password); err != nil {
			return oops.Code("SEED_INVALID").Wrapf(err, "invalid password")
		}
	default:
		if !auth.IsSupportedHash(u.PasswordHash) {
			return oops.Code("SEED_INVALID").Errorf("password_hash must be a bcrypt or argon2id hash")
		}
	}
	return nil
}

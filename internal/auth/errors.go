// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"errors"
	"net/http"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing entity.
var ErrConflict = errors.New("conflict")

// Kind classifies an error for the response layer.
type Kind string

// Error kinds. Every expected failure of this package carries one of these
// as its oops domain.
const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal"
)

// HTTPStatus returns the status code a response layer should use for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// KindOf reports the kind of err. Errors without one are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		switch k := Kind(oopsErr.Domain()); k {
		case KindValidation, KindAuthentication, KindAuthorization, KindNotFound, KindConflict:
			return k
		}
	}
	return KindInternal
}

// The constructors below are the only way typed errors are created. Their
// messages are safe to show to clients.

func validationError(code, format string, args ...any) error {
	return oops.Code(code).In(string(KindValidation)).Errorf(format, args...)
}

func authenticationError(code, msg string) error {
	return oops.Code(code).In(string(KindAuthentication)).Errorf("%s", msg)
}

func authorizationError(code, msg string) error {
	return oops.Code(code).In(string(KindAuthorization)).Errorf("%s", msg)
}

func notFoundError(code, msg string) error {
	return oops.Code(code).In(string(KindNotFound)).Errorf("%s", msg)
}

func conflictError(code, msg string) error {
	return oops.Code(code).In(string(KindConflict)).Errorf("%s", msg)
}

// internalError wraps an unexpected cause, recording the failed operation.
func internalError(code, operation string, cause error) error {
	return oops.Code(code).In(string(KindInternal)).With("operation", operation).Wrap(cause)
}

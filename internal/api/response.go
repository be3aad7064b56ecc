// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/pkg/errutil"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 10

const genericErrorMessage = "something went wrong"

type envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type userData struct {
	User userView `json:"user"`
}

// userView is the public representation of a user. Password and reset
// fields never leave the server.
type userView struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Photo             string     `json:"photo"`
	Role              auth.Role  `json:"role"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func newUserView(u *auth.User) userView {
	return userView{
		ID:                u.ID.String(),
		Name:              u.Name,
		Email:             u.Email,
		Photo:             u.Photo,
		Role:              u.Role,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
	}
}

func success(token string, user *auth.User) envelope {
	env := envelope{Status: "success", Token: token}
	if user != nil {
		env.Data = userData{User: newUserView(user)}
	}
	return env
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // the client may have gone away
	json.NewEncoder(w).Encode(body)
}

// writeError renders err with the status of its kind. Client errors carry
// their message; server errors are logged and answered generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := auth.KindOf(err).HTTPStatus()
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err,
			"method", r.Method,
			"route", r.Pattern,
			"request_id", RequestIDFromContext(r.Context()))
		writeJSON(w, status, envelope{Status: "error", Message: genericErrorMessage})
		return
	}
	writeJSON(w, status, envelope{Status: "fail", Message: err.Error()})
}

func invalidBody(format string, args ...any) error {
	return oops.Code("API_INVALID_BODY").In(string(auth.KindValidation)).Errorf(format, args...)
}

// decodeJSON reads a JSON object into dst. Unknown fields are ignored and
// an empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &maxErr):
			return invalidBody("request body must not exceed %d bytes", maxErr.Limit)
		case errors.As(err, &syntaxErr):
			return invalidBody("request body contains malformed JSON at position %d", syntaxErr.Offset)
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return invalidBody("request body has the wrong type for field %q", typeErr.Field)
		default:
			return invalidBody("request body must be a JSON object")
		}
	}
	if dec.More() {
		return invalidBody("request body must contain a single JSON object")
	}
	return nil
}

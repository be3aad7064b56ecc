// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package api serves the Natours users API over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/observability"
)

// UsersPrefix is the mount point of the users routes.
const UsersPrefix = "/api/v1/users"

// AuthService is the signup, login and password change surface.
type AuthService interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*auth.User, string, error)
	Login(ctx context.Context, email, password string) (*auth.User, string, error)
	UpdatePassword(ctx context.Context, identity *auth.Identity, current, password, confirm string) (string, error)
	Me(ctx context.Context, identity *auth.Identity) (*auth.User, error)
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// ResetService is the forgot/reset password surface.
type ResetService interface {
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password, confirm string) (*auth.User, string, error)
}

// Protector authenticates an Authorization header value.
type Protector interface {
	Protect(ctx context.Context, authorization string) (*auth.Identity, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Auth   AuthService
	Reset  ResetService
	Guard  Protector
	Logger *slog.Logger
	// Recorder receives metrics. Nil disables them.
	Recorder Recorder
}

// Handler serves the users API.
type Handler struct {
	auth     AuthService
	reset    ResetService
	guard    Protector
	logger   *slog.Logger
	recorder Recorder
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Code("API_INVALID").Errorf("auth service is required")
	case deps.Reset == nil:
		return nil, oops.Code("API_INVALID").Errorf("reset service is required")
	case deps.Guard == nil:
		return nil, oops.Code("API_INVALID").Errorf("guard is required")
	}
	h := &Handler{
		auth:     deps.Auth,
		reset:    deps.Reset,
		guard:    deps.Guard,
		logger:   deps.Logger,
		recorder: deps.Recorder,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.recorder == nil {
		h.recorder = noopRecorder{}
	}
	return h, nil
}

// Routes returns the users API wrapped in the standard middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+UsersPrefix+"/signup", h.signup)
	mux.HandleFunc("POST "+UsersPrefix+"/login", h.login)
	mux.HandleFunc("POST "+UsersPrefix+"/forgotPassword", h.forgotPassword)
	mux.HandleFunc("PATCH "+UsersPrefix+"/resetPassword/{token}", h.resetPassword)
	mux.Handle("PATCH "+UsersPrefix+"/updateMyPassword", h.Protect(h.updateMyPassword))
	mux.Handle("GET "+UsersPrefix+"/me", h.Protect(h.me))
	mux.Handle("GET "+UsersPrefix+"/{id}", h.Protect(h.Restrict(h.getUser, auth.RoleAdmin)))

	return Chain(mux,
		RequestID(),
		Tracing(),
		AccessLog(h.logger),
		Metrics(h.recorder),
		SecurityHeaders(),
	)
}

// fail writes err and counts the auth operation by its outcome.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	outcome := observability.OutcomeFailure
	if auth.KindOf(err) == auth.KindInternal {
		outcome = observability.OutcomeError
	}
	h.recorder.RecordAuthEvent(operation, outcome)
	writeError(w, r, h.logger, err)
}

func (h *Handler) ok(w http.ResponseWriter, operation string, status int, body envelope) {
	h.recorder.RecordAuthEvent(operation, observability.OutcomeSuccess)
	writeJSON(w, status, body)
}

type signupBody struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	Role            string `json:"role"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	user, token, err := h.auth.Signup(r.Context(), auth.SignupRequest{
		Name:            body.Name,
		Email:           body.Email,
		Password:        body.Password,
		PasswordConfirm: body.PasswordConfirm,
		Role:            body.Role,
	})
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	h.ok(w, "signup", http.StatusCreated, success(token, user))
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, "login", err)
		return
	}
	_, token, err := h.auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	h.ok(w, "login", http.StatusOK, success(token, nil))
}

type forgotBody struct {
	Email string `json:"email"`
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, "forgot_password", err)
		return
	}
	if err := h.reset.ForgotPassword(r.Context(), body.Email); err != nil {
		h.fail(w, r, "forgot_password", err)
		return
	}
	h.ok(w, "forgot_password", http.StatusOK, envelope{Status: "success", Message: "token sent to email"})
}

type newPasswordBody struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body newPasswordBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	user, token, err := h.reset.ResetPassword(r.Context(), r.PathValue("token"), body.Password, body.PasswordConfirm)
	if err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	h.ok(w, "reset_password", http.StatusOK, success(token, user))
}

func (h *Handler) updateMyPassword(w http.ResponseWriter, r *http.Request, identity *auth.Identity) {
	var body newPasswordBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, "update_password", err)
		return
	}
	token, err := h.auth.UpdatePassword(r.Context(), identity, body.PasswordCurrent, body.Password, body.PasswordConfirm)
	if err != nil {
		h.fail(w, r, "update_password", err)
		return
	}
	h.ok(w, "update_password", http.StatusOK, success(token, nil))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request, identity *auth.Identity) {
	user, err := h.auth.Me(r.Context(), identity)
	if err != nil {
		h.fail(w, r, "me", err)
		return
	}
	h.ok(w, "me", http.StatusOK, success("", user))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	user, err := h.auth.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "get_user", err)
		return
	}
	h.ok(w, "get_user", http.StatusOK, success("", user))
}

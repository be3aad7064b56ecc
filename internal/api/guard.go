// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package api

import (
	"context"
	"net/http"

	"github.com/natours/natours/internal/auth"
)

// IdentityHandler handles a request whose caller has been authenticated.
type IdentityHandler func(w http.ResponseWriter, r *http.Request, identity *auth.Identity)

type identityKey struct{}

// IdentityFromContext returns the identity stored by Protect.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*auth.Identity)
	return identity, ok && identity != nil
}

// Protect authenticates the bearer token of the request and passes the
// identity on. The identity is also stored in the request context.
func (h *Handler) Protect(next IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.guard.Protect(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			h.fail(w, r, "protect", err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)), identity)
	})
}

// Restrict lets through only identities holding one of roles.
func (h *Handler) Restrict(next IdentityHandler, roles ...auth.Role) IdentityHandler {
	return func(w http.ResponseWriter, r *http.Request, identity *auth.Identity) {
		if err := auth.RestrictTo(identity, roles...); err != nil {
			h.fail(w, r, "restrict", err)
			return
		}
		next(w, r, identity)
	}
}

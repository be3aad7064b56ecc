// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import "context"

// Message is an outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages to users.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// ResetLinkFunc builds the link a user follows to redeem a reset token.
type ResetLinkFunc func(token string) string

// ResetLinkFor returns a ResetLinkFunc rooted at baseURL, for example
// "https://natours.dev" yields "https://natours.dev/api/v1/users/resetPassword/<token>".
func ResetLinkFor(baseURL string) ResetLinkFunc {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return func(token string) string {
		return baseURL + "/api/v1/users/resetPassword/" + token
	}
}

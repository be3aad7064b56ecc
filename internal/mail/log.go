// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/natours/natours/internal/auth"
)

// Compile-time interface check.
var _ auth.Notifier = (*LogNotifier)(nil)

// LogNotifier writes messages to a logger instead of sending them. It is
// meant for local development, where the reset link is read from the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs msg. It never fails.
func (n *LogNotifier) Send(ctx context.Context, msg auth.Message) error {
	n.logger.InfoContext(ctx, "mail not sent, log driver",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

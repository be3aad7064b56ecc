// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/natours/natours/internal/auth"
)

// Compile-time interface check.
var _ auth.Notifier = (*SMTPNotifier)(nil)

// Default retry settings.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
)

// SMTPConfig configures an SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// MaxAttempts bounds delivery attempts, including the first.
	MaxAttempts    uint64
	InitialBackoff time.Duration
}

// Validate reports the first missing or malformed setting.
func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("mail host is required")
	case c.Port <= 0 || c.Port > 65535:
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("mail port must be between 1 and 65535, got %d", c.Port)
	case c.From == "":
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("mail from address is required")
	}
	return nil
}

// sendFunc has the signature of smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends messages through an SMTP relay. Transient failures
// are retried with exponential backoff.
type SMTPNotifier struct {
	cfg    SMTPConfig
	addr   string
	auth   smtp.Auth
	send   sendFunc
	now    func() time.Time
	logger *slog.Logger
}

// SMTPOption configures an SMTPNotifier.
type SMTPOption func(*SMTPNotifier)

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) SMTPOption {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// withSender replaces smtp.SendMail. Tests use it.
func withSender(send sendFunc) SMTPOption {
	return func(n *SMTPNotifier) { n.send = send }
}

// NewSMTPNotifier creates an SMTPNotifier. PLAIN auth is used when a
// username is configured.
func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPOption) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}

	n := &SMTPNotifier{
		cfg:    cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send:   smtp.SendMail,
		now:    time.Now,
		logger: slog.Default(),
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Send delivers msg, retrying transient failures until the attempts are
// used up or ctx ends.
func (n *SMTPNotifier) Send(ctx context.Context, msg auth.Message) error {
	body, err := n.compose(msg)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(n.cfg.MaxAttempts-1, retry.NewExponential(n.cfg.InitialBackoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		sendErr := n.send(n.addr, n.auth, n.cfg.From, []string{msg.To}, body)
		if sendErr == nil {
			return nil
		}
		if !isTransient(sendErr) {
			return sendErr
		}
		n.logger.WarnContext(ctx, "smtp delivery failed, retrying",
			"attempt", attempt,
			"addr", n.addr,
			"error", sendErr)
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("addr", n.addr).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

func (n *SMTPNotifier) compose(msg auth.Message) ([]byte, error) {
	for field, value := range map[string]string{"to": msg.To, "subject": msg.Subject} {
		if strings.ContainsAny(value, "\r\n") {
			return nil, oops.Code("MAIL_INVALID_HEADER").
				With("field", field).
				Errorf("%s must not contain line breaks", field)
		}
	}
	if msg.To == "" {
		return nil, oops.Code("MAIL_INVALID_HEADER").With("field", "to").Errorf("recipient is required")
	}

	var b bytes.Buffer
	writeHeader := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}
	writeHeader("From", n.cfg.From)
	writeHeader("To", msg.To)
	writeHeader("Subject", msg.Subject)
	writeHeader("Date", n.now().UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes(), nil
}

// isTransient reports whether err is worth another attempt. SMTP 5xx
// replies are permanent; 4xx replies and network errors are not.
func isTransient(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code < 500
	}
	return true
}

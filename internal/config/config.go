// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package config loads the Natours server configuration.
//
// Layers are applied in order, each overriding the previous one: built-in
// defaults, the YAML config file, secrets from the environment (optionally
// seeded from a dotenv file) and finally command-line flags.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/logging"
	"github.com/natours/natours/internal/mail"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mail drivers.
const (
	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Store    string         `koanf:"store"`
	Token    TokenConfig    `koanf:"token"`
	Hash     HashConfig     `koanf:"hash"`
	Mail     MailConfig     `koanf:"mail"`
}

// ServerConfig configures the API listener.
type ServerConfig struct {
	Addr string `koanf:"addr"`
	// PublicURL is the externally visible base URL, used in reset links.
	PublicURL         string        `koanf:"public_url"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// TokenConfig configures bearer tokens.
type TokenConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
	Issuer string        `koanf:"issuer"`
}

// HashConfig configures password hashing.
type HashConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
	// Workers is the hash pool size. Zero means GOMAXPROCS.
	Workers int `koanf:"workers"`
}

// MailConfig configures outbound mail.
type MailConfig struct {
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "server.addr is required")
	}
	if u, err := url.Parse(c.Server.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server.public_url", "server.public_url must be an absolute http(s) URL, got %q", c.Server.PublicURL)
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		return invalid("server.read_header_timeout", "server.read_header_timeout must be positive")
	}

	if err := c.ValidateStorage(); err != nil {
		return err
	}

	if len(c.Token.Secret) < auth.MinTokenSecretLength {
		return invalid("token.secret", "token.secret must be at least %d bytes (set NATOURS_JWT_SECRET)", auth.MinTokenSecretLength)
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "token.ttl must be positive")
	}

	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if err := c.SMTPConfig().Validate(); err != nil {
			return oops.With("key", "mail").Wrap(err)
		}
	default:
		return invalid("mail.driver", "mail.driver must be log or smtp, got %q", c.Mail.Driver)
	}
	return nil
}

// ValidateStorage checks the settings needed to reach the user store and
// hash passwords: logging, store, database and hash. The migrate and seed
// commands need nothing else.
func (c *Config) ValidateStorage() error {
	if err := c.LogOptions("", "").Validate(); err != nil {
		return oops.With("key", "log").Wrap(err)
	}

	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url is required for the postgres store (set DATABASE_URL)")
		}
	case StoreMemory:
	default:
		return invalid("store", "store must be postgres or memory, got %q", c.Store)
	}

	if err := c.Argon2Params().Validate(); err != nil {
		return oops.With("key", "hash").Wrap(err)
	}
	if c.Hash.Workers < 0 {
		return invalid("hash.workers", "hash.workers must not be negative")
	}
	return nil
}

// LogOptions returns the logging options for service and version.
func (c *Config) LogOptions(service, version string) logging.Options {
	return logging.Options{Service: service, Version: version, Format: c.Log.Format, Level: c.Log.Level}
}

// TokenConfig returns the token codec configuration.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{Secret: []byte(c.Token.Secret), TTL: c.Token.TTL, Issuer: c.Token.Issuer}
}

// Argon2Params returns the hasher work factor.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Time = c.Hash.Time
	p.MemoryKiB = c.Hash.MemoryKiB
	p.Threads = c.Hash.Threads
	return p
}

// SMTPConfig returns the SMTP notifier configuration.
func (c *Config) SMTPConfig() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		From:     c.Mail.From,
	}
}

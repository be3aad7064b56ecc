// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/natours/natours/internal/xdg"
)

// DefaultEnvFile is read when no --env-file is given. It may be absent.
const DefaultEnvFile = ".env"

// Environment variables holding secrets.
const (
	EnvJWTSecret    = "NATOURS_JWT_SECRET"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvSMTPPassword = "NATOURS_SMTP_PASSWORD"
)

var envKeys = map[string]string{
	EnvJWTSecret:    "token.secret",
	EnvDatabaseURL:  "database.url",
	EnvSMTPPassword: "mail.password",
}

var defaults = map[string]any{
	"server.addr":                ":3000",
	"server.public_url":          "http://localhost:3000",
	"server.read_header_timeout": 10 * time.Second,
	"metrics.addr":               "127.0.0.1:9100",
	"log.format":                 "json",
	"log.level":                  "info",
	"database.url":               "",
	"store":                      StorePostgres,
	"token.secret":               "",
	"token.ttl":                  90 * 24 * time.Hour,
	"token.issuer":               "natours",
	"hash.time":                  1,
	"hash.memory_kib":            64 * 1024,
	"hash.threads":               4,
	"hash.workers":               0,
	"mail.driver":                MailDriverLog,
	"mail.host":                  "",
	"mail.port":                  587,
	"mail.username":              "",
	"mail.password":              "",
	"mail.from":                  "Natours <hello@natours.dev>",
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"public-url":   "server.public_url",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"database-url": "database.url",
	"store":        "store",
	"token-ttl":    "token.ttl",
	"hash-workers": "hash.workers",
	"mail-driver":  "mail.driver",
}

// RegisterFlags adds the config flags to fs. Their defaults are only
// documentation; unset flags never override other layers.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default $XDG_CONFIG_HOME/natours/config.yaml)")
	fs.String("env-file", "", "dotenv file with secrets (default .env)")
	fs.String("addr", ":3000", "API listen address")
	fs.String("public-url", "http://localhost:3000", "public base URL used in reset links")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	fs.String("store", StorePostgres, "user store (postgres or memory)")
	fs.Duration("token-ttl", 90*24*time.Hour, "bearer token lifetime")
	fs.Int("hash-workers", 0, "password hash workers (0 = GOMAXPROCS)")
	fs.String("mail-driver", MailDriverLog, "mail driver (log or smtp)")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// ConfigFile is an explicit config path. It must exist.
	ConfigFile string
	// EnvFile is an explicit dotenv path. It must exist.
	EnvFile string
	// Flags holds parsed command-line flags. It may be nil.
	Flags *pflag.FlagSet
	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Check validates the loaded config. Defaults to (*Config).Validate.
	// Commands that never serve requests pass (*Config).ValidateStorage.
	Check func(*Config) error
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.Flags != nil {
		if opts.ConfigFile == "" {
			opts.ConfigFile, _ = opts.Flags.GetString("config") //nolint:errcheck // absent flag means no override
		}
		if opts.EnvFile == "" {
			opts.EnvFile, _ = opts.Flags.GetString("env-file") //nolint:errcheck // absent flag means no override
		}
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if err := loadFile(k, opts.ConfigFile); err != nil {
		return nil, err
	}
	if err := loadEnv(k, opts.EnvFile, opts.LookupEnv); err != nil {
		return nil, err
	}
	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	check := opts.Check
	if check == nil {
		check = (*Config).Validate
	}
	if err := check(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if path == "" {
		var exists bool
		if path, exists = xdg.DefaultConfigFile(); !exists {
			return nil
		}
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// loadEnv applies the secret environment variables. Values from the dotenv
// file apply only where the process environment has none.
func loadEnv(k *koanf.Koanf, envFile string, lookup func(string) (string, bool)) error {
	dotenv, err := readDotenv(envFile)
	if err != nil {
		return err
	}
	for name, key := range envKeys {
		value, ok := lookup(name)
		if !ok {
			value, ok = dotenv[name]
		}
		if !ok || value == "" {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.Code("CONFIG_ENV_FILE_INVALID").With("path", path).Wrap(err)
	}
	return values, nil
}

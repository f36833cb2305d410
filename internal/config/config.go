// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package config loads service configuration from defaults, a YAML file,
// IDENTITY_* environment variables and command-line flags, in that order.
package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. Nested keys use a double
// underscore: IDENTITY_AUTH__MAX_LOGIN_ATTEMPTS sets auth.max_login_attempts.
const EnvPrefix = "IDENTITY_"

// Store and revocation backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config is the service configuration.
type Config struct {
	Log        LogConfig        `koanf:"log" json:"log,omitempty"`
	HTTP       ListenConfig     `koanf:"http" json:"http,omitempty"`
	GRPC       ListenConfig     `koanf:"grpc" json:"grpc,omitempty"`
	Metrics    ListenConfig     `koanf:"metrics" json:"metrics,omitempty"`
	Database   DatabaseConfig   `koanf:"database" json:"database,omitempty"`
	Store      string           `koanf:"store" json:"store,omitempty" jsonschema:"enum=postgres,enum=memory,description=Principal and access storage"`
	Revocation RevocationConfig `koanf:"revocation" json:"revocation,omitempty"`
	Redis      RedisConfig      `koanf:"redis" json:"redis,omitempty"`
	JWT        JWTConfig        `koanf:"jwt" json:"jwt,omitempty"`
	Auth       AuthConfig       `koanf:"auth" json:"auth,omitempty"`
	Reset      ResetConfig      `koanf:"reset" json:"reset,omitempty"`
	Mail       MailConfig       `koanf:"mail" json:"mail,omitempty"`
	Seed       SeedConfig       `koanf:"seed" json:"seed,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ListenConfig is a listen address. An empty metrics address disables the
// observability server.
type ListenConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url" json:"url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
}

// RevocationConfig selects where revoked tokens are recorded.
type RevocationConfig struct {
	Backend string `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=postgres,enum=redis,enum=memory"`
}

// RedisConfig configures the Redis revocation backend.
type RedisConfig struct {
	URL string `koanf:"url" json:"url,omitempty" jsonschema:"description=redis:// URL"`
}

// JWTConfig configures bearer tokens.
type JWTConfig struct {
	// Secret is the base64-encoded HS256 signing key.
	Secret string `koanf:"secret" json:"secret,omitempty"`
	Issuer string `koanf:"issuer" json:"issuer,omitempty"`
	TTL    string `koanf:"ttl" json:"ttl,omitempty" jsonschema:"description=Token lifetime as a Go duration"`
}

// AuthConfig configures login.
type AuthConfig struct {
	MaxLoginAttempts int `koanf:"max_login_attempts" json:"max_login_attempts,omitempty" jsonschema:"minimum=1"`
}

// ResetConfig configures password resets.
type ResetConfig struct {
	ExpirationMinutes int    `koanf:"expiration_minutes" json:"expiration_minutes,omitempty" jsonschema:"minimum=1"`
	BaseURL           string `koanf:"base_url" json:"base_url,omitempty" jsonschema:"description=Public URL prefixed to reset links"`
	PurgeInterval     string `koanf:"purge_interval" json:"purge_interval,omitempty" jsonschema:"description=How often expired reset tokens and revocations are pruned"`
}

// MailConfig configures SMTP delivery.
type MailConfig struct {
	Host       string `koanf:"host" json:"host,omitempty"`
	Port       int    `koanf:"port" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	Username   string `koanf:"username" json:"username,omitempty"`
	Password   string `koanf:"password" json:"password,omitempty"`
	From       string `koanf:"from" json:"from,omitempty"`
	ClientName string `koanf:"client_name" json:"client_name,omitempty"`
	Workers    int    `koanf:"workers" json:"workers,omitempty" jsonschema:"minimum=1"`
	QueueSize  int    `koanf:"queue_size" json:"queue_size,omitempty" jsonschema:"minimum=1"`
}

// SeedConfig configures `identity seed`.
type SeedConfig struct {
	AdminEmail string `koanf:"admin_email" json:"admin_email,omitempty"`
}

// Defaults returns the built-in configuration as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"log.format":               "json",
		"log.level":                "info",
		"http.addr":                ":8080",
		"grpc.addr":                ":9090",
		"metrics.addr":             "127.0.0.1:9100",
		"store":                    BackendPostgres,
		"revocation.backend":       BackendPostgres,
		"jwt.issuer":               "finlife-identity",
		"jwt.ttl":                  "24h",
		"auth.max_login_attempts":  6,
		"reset.expiration_minutes": 30,
		"reset.base_url":           "http://localhost:8080",
		"reset.purge_interval":     "1h",
		"mail.port":                587,
		"mail.from":                "no-reply@finlife.example",
		"mail.client_name":         "identity",
		"mail.workers":             2,
		"mail.queue_size":          100,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"grpc-addr":    "grpc.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"store":        "store",
	"admin-email":  "seed.admin_email",
}

// LoadOptions selects the sources of Load.
type LoadOptions struct {
	// File is an optional YAML file, validated against Schema before use.
	File string
	// Flags are applied last. Only flags named in the flag table are read;
	// unchanged flags do not override earlier sources.
	Flags *pflag.FlagSet
	// Environ replaces the process environment when set.
	Environ func() []string
}

// Load assembles and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", opts.File).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", opts.File).Wrap(err)
		}
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", opts.File).Wrap(err)
		}
	}

	var envSource koanf.Provider = env.Provider(EnvPrefix, ".", envKey)
	if opts.Environ != nil {
		envSource = stagedEnv(opts.Environ())
	}
	if err := k.Load(envSource, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// stagedEnv maps IDENTITY_* entries of environ the way the env provider
// maps the process environment.
func stagedEnv(environ []string) koanf.Provider {
	values := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		values[envKey(name)] = value
	}
	return confmap.Provider(values, ".")
}

func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Validate checks cross-field rules that the schema cannot express.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return invalid("log.format", "log.format must be json or text, got %q", c.Log.Format)
	}
	if !slices.Contains([]string{BackendPostgres, BackendMemory}, c.Store) {
		return invalid("store", "store must be postgres or memory, got %q", c.Store)
	}
	if !slices.Contains([]string{BackendPostgres, BackendRedis, BackendMemory}, c.Revocation.Backend) {
		return invalid("revocation.backend", "revocation.backend must be postgres, redis or memory, got %q", c.Revocation.Backend)
	}
	if (c.Store == BackendPostgres || c.Revocation.Backend == BackendPostgres) && c.Database.URL == "" {
		return invalid("database.url", "database.url is required for the postgres backend")
	}
	if c.Store == BackendMemory && c.Revocation.Backend == BackendPostgres {
		return invalid("revocation.backend", "the postgres revocation backend needs the postgres store")
	}
	if c.Revocation.Backend == BackendRedis && c.Redis.URL == "" {
		return invalid("redis.url", "redis.url is required for the redis revocation backend")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.PurgeInterval(); err != nil {
		return err
	}
	if c.Auth.MaxLoginAttempts < 1 {
		return invalid("auth.max_login_attempts", "auth.max_login_attempts must be positive")
	}
	if c.Reset.ExpirationMinutes < 1 {
		return invalid("reset.expiration_minutes", "reset.expiration_minutes must be positive")
	}
	if c.Mail.Workers < 1 || c.Mail.QueueSize < 1 {
		return invalid("mail.workers", "mail.workers and mail.queue_size must be positive")
	}
	return nil
}

// TokenTTL parses jwt.ttl.
func (c *Config) TokenTTL() (time.Duration, error) {
	return parsePositiveDuration("jwt.ttl", c.JWT.TTL)
}

// PurgeInterval parses reset.purge_interval.
func (c *Config) PurgeInterval() (time.Duration, error) {
	return parsePositiveDuration("reset.purge_interval", c.Reset.PurgeInterval)
}

// ResetExpiration is reset.expiration_minutes as a duration.
func (c *Config) ResetExpiration() time.Duration {
	return time.Duration(c.Reset.ExpirationMinutes) * time.Minute
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("key", key).Wrapf(err, "%s is not a duration", key)
	}
	if d <= 0 {
		return 0, oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s must be positive", key)
	}
	return d, nil
}

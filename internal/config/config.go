// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package config loads and validates reservd configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, an optional .env file, the environment and finally command-line
// flags. Environment variables use the RESERVD_ prefix with "__" separating
// sections (RESERVD_AUTH__JWT_SECRET sets auth.jwt_secret); the un-prefixed
// JWT_SECRET, JWT_EXPIRATION, JWT_SECURE_COOKIE, DATABASE_URL and
// MONGODB_URI are also honoured.
package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/logging"
	"github.com/reservd/reservd/internal/token"
)

// EnvPrefix prefixes reservd environment variables.
const EnvPrefix = "RESERVD_"

// EnvironmentProduction forces secure cookies.
const EnvironmentProduction = "production"

// Revocation store kinds.
const (
	RevocationMemory = "memory"
	RevocationRedis  = "redis"
)

// Role names the process a configuration is validated for.
type Role string

// Roles.
const (
	RoleAuth         Role = "auth"
	RoleReservation  Role = "reservation"
	RolePayment      Role = "payment"
	RoleNotification Role = "notification"
	RoleMigrate      Role = "migrate"
)

// Config is the complete reservd configuration.
type Config struct {
	Environment   string              `koanf:"environment" yaml:"environment"`
	Log           LogConfig           `koanf:"log" yaml:"log"`
	MetricsAddr   string              `koanf:"metrics_addr" yaml:"metrics_addr"`
	Database      DatabaseConfig      `koanf:"database" yaml:"database"`
	Redis         RedisConfig         `koanf:"redis" yaml:"redis"`
	TLS           TLSConfig           `koanf:"tls" yaml:"tls"`
	Auth          AuthConfig          `koanf:"auth" yaml:"auth"`
	AuthClient    ClientConfig        `koanf:"auth_client" yaml:"auth_client"`
	Gate          GateConfig          `koanf:"gate" yaml:"gate"`
	Reservation   ReservationConfig   `koanf:"reservation" yaml:"reservation"`
	Payment       PaymentConfig       `koanf:"payment" yaml:"payment"`
	PaymentClient PaymentClientConfig `koanf:"payment_client" yaml:"payment_client"`
	Notification  NotificationConfig  `koanf:"notification" yaml:"notification"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URI         string `koanf:"uri" yaml:"uri"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// RedisConfig configures Redis.
type RedisConfig struct {
	URL string `koanf:"url" yaml:"url"`
}

// TLSConfig configures mutual TLS between services. With Enabled set, gRPC
// servers require client certificates issued by the CA in CertsDir.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	CertsDir string `koanf:"certs_dir" yaml:"certs_dir"`
}

// AuthConfig configures the auth process.
type AuthConfig struct {
	HTTPAddr          string            `koanf:"http_addr" yaml:"http_addr"`
	GRPCAddr          string            `koanf:"grpc_addr" yaml:"grpc_addr"`
	JWTSecret         string            `koanf:"jwt_secret" yaml:"jwt_secret"`
	JWTExpiration     string            `koanf:"jwt_expiration" yaml:"jwt_expiration"`
	SecureCookie      *bool             `koanf:"secure_cookie" yaml:"secure_cookie,omitempty"`
	MinPasswordLength int               `koanf:"min_password_length" yaml:"min_password_length"`
	Hasher            auth.HasherConfig `koanf:"hasher" yaml:"hasher"`
	LoginRate         float64           `koanf:"login_rate" yaml:"login_rate"`
	LoginBurst        int               `koanf:"login_burst" yaml:"login_burst"`
	Revocation        string            `koanf:"revocation" yaml:"revocation"`
}

// ClientConfig addresses a peer gRPC service.
type ClientConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// PaymentClientConfig addresses the payment service. Timeout bounds one
// CreateCharge call.
type PaymentClientConfig struct {
	Addr    string        `koanf:"addr" yaml:"addr"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// GateConfig configures the cross-service auth gate.
type GateConfig struct {
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// ReservationConfig configures the reservation process.
type ReservationConfig struct {
	HTTPAddr string `koanf:"http_addr" yaml:"http_addr"`
}

// PaymentConfig configures the payment process.
type PaymentConfig struct {
	GRPCAddr string `koanf:"grpc_addr" yaml:"grpc_addr"`
}

// NotificationConfig configures the notification consumer.
type NotificationConfig struct {
	Stream   string `koanf:"stream" yaml:"stream"`
	Group    string `koanf:"group" yaml:"group"`
	Consumer string `koanf:"consumer" yaml:"consumer"`
}

// defaults are loaded before any other source.
var defaults = map[string]any{
	"environment":                "development",
	"log.format":                 "json",
	"log.level":                  "info",
	"database.auto_migrate":      true,
	"tls.enabled":                false,
	"auth.http_addr":             ":3001",
	"auth.grpc_addr":             "localhost:9001",
	"auth.min_password_length":   auth.DefaultMinPasswordLength,
	"auth.hasher.algorithm":      auth.DefaultHasherConfig().Algorithm,
	"auth.hasher.argon2.time":    auth.DefaultHasherConfig().Argon2.Time,
	"auth.hasher.argon2.memory":  auth.DefaultHasherConfig().Argon2.Memory,
	"auth.hasher.argon2.threads": auth.DefaultHasherConfig().Argon2.Threads,
	"auth.hasher.bcrypt_cost":    auth.DefaultHasherConfig().BcryptCost,
	"auth.login_rate":            1.0,
	"auth.login_burst":           5,
	"auth.revocation":            RevocationMemory,
	"auth_client.addr":           "localhost:9001",
	"gate.timeout":               "5s",
	"reservation.http_addr":      ":3000",
	"payment.grpc_addr":          "localhost:9003",
	"payment_client.addr":        "localhost:9003",
	"payment_client.timeout":     "5s",
	"notification.stream":        "reservd:notifications",
	"notification.group":         "notification",
	"notification.consumer":      "notification-1",
}

// legacyEnv maps the un-prefixed variables onto config keys.
var legacyEnv = map[string]string{
	"JWT_SECRET":        "auth.jwt_secret",
	"JWT_EXPIRATION":    "auth.jwt_expiration",
	"JWT_SECURE_COOKIE": "auth.secure_cookie",
	"DATABASE_URL":      "database.uri",
	"MONGODB_URI":       "database.uri",
	"REDIS_URL":         "redis.url",
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"environment":  "environment",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics_addr",
	"database-url": "database.uri",
	"redis-url":    "redis.url",
	"certs-dir":    "tls.certs_dir",
	"tls":          "tls.enabled",
	"http-addr":    "",
	"grpc-addr":    "",
	"auth-addr":    "auth_client.addr",
	"payment-addr": "payment_client.addr",
	"gate-timeout": "gate.timeout",
}

// roleFlagKeys resolves the role-specific listen flags.
var roleFlagKeys = map[Role]map[string]string{
	RoleAuth:        {"http-addr": "auth.http_addr", "grpc-addr": "auth.grpc_addr"},
	RoleReservation: {"http-addr": "reservation.http_addr"},
	RolePayment:     {"grpc-addr": "payment.grpc_addr"},
}

// LoadOptions select the optional sources of Load.
type LoadOptions struct {
	// ConfigFile is a YAML file; empty skips it.
	ConfigFile string
	// EnvFile is a dotenv file; a missing file is ignored.
	EnvFile string
	// Flags are applied last when set.
	Flags *pflag.FlagSet
	// Role picks the destination of role-specific flags.
	Role Role
}

// Load assembles the configuration. It does not validate it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code(apperr.CodeConfigInvalid).With("key", key).Wrap(err)
		}
	}

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, oops.Code(apperr.CodeConfigInvalid).With("file", opts.ConfigFile).Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code(apperr.CodeConfigInvalid).With("file", opts.EnvFile).Wrap(err)
		}
	}

	legacy := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		mapped, ok := legacyEnv[key]
		if !ok || value == "" {
			return "", nil
		}
		return mapped, value
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, oops.Code(apperr.CodeConfigInvalid).Wrap(err)
	}

	prefixed := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, oops.Code(apperr.CodeConfigInvalid).Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKey(opts.Role, f.Name)
			if key == "" || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(apperr.CodeConfigInvalid).Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(apperr.CodeConfigInvalid).Wrap(err)
	}
	return &cfg, nil
}

func flagKey(role Role, name string) string {
	if key, ok := roleFlagKeys[role][name]; ok {
		return key
	}
	return flagKeys[name]
}

// RegisterFlags adds the shared flags to fs. Listen flags are added only for
// roles that listen.
func RegisterFlags(fs *pflag.FlagSet, role Role) {
	fs.String("environment", "", "deployment environment (production forces secure cookies)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("redis-url", "", "Redis connection URL")
	fs.String("certs-dir", "", "directory holding the mTLS CA and certificates")
	fs.Bool("tls", false, "require mTLS between services")
	if role == RoleMigrate {
		return
	}
	fs.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	switch role {
	case RoleAuth:
		fs.String("http-addr", "", "public HTTP listen address")
		fs.String("grpc-addr", "", "inter-service gRPC listen address")
	case RoleReservation:
		fs.String("http-addr", "", "public HTTP listen address")
		fs.String("auth-addr", "", "auth service gRPC address")
		fs.String("payment-addr", "", "payment service gRPC address")
		fs.Duration("gate-timeout", 0, "bound on one token validation call")
	case RolePayment:
		fs.String("grpc-addr", "", "gRPC listen address")
		fs.String("auth-addr", "", "auth service gRPC address")
		fs.Duration("gate-timeout", 0, "bound on one token validation call")
	}
}

// JWTTTL parses auth.jwt_expiration.
func (c *Config) JWTTTL() (time.Duration, error) {
	return token.ParseTTL(c.Auth.JWTExpiration)
}

// SecureCookie reports whether the Authentication cookie is marked Secure.
// Production always is; elsewhere auth.secure_cookie decides.
func (c *Config) SecureCookie() bool {
	if c.Environment == EnvironmentProduction {
		return true
	}
	return c.Auth.SecureCookie != nil && *c.Auth.SecureCookie
}

// Validate checks everything role needs and reports every problem in one
// CONFIG_INVALID error.
func (c *Config) Validate(role Role) error {
	var problems []string
	add := func(format string, ok bool) {
		if !ok {
			problems = append(problems, format)
		}
	}

	add("log.format must be json or text", c.Log.Format == "json" || c.Log.Format == "text")
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level: "+err.Error())
	}
	if c.MetricsAddr != "" {
		add("metrics_addr must be host:port", isHostPort(c.MetricsAddr))
	}
	if c.TLS.Enabled {
		add("tls.certs_dir is required when tls.enabled is set", c.TLS.CertsDir != "")
	}

	switch role {
	case RoleAuth:
		add("database.uri is required", c.Database.URI != "")
		add("auth.jwt_secret must be at least 16 bytes", len(c.Auth.JWTSecret) >= token.MinSecretLength)
		if c.Auth.JWTExpiration == "" {
			problems = append(problems, "auth.jwt_expiration is required")
		} else if _, err := c.JWTTTL(); err != nil {
			problems = append(problems, "auth.jwt_expiration: "+err.Error())
		}
		add("auth.http_addr must be host:port", isHostPort(c.Auth.HTTPAddr))
		add("auth.grpc_addr must be host:port", isHostPort(c.Auth.GRPCAddr))
		add("auth.min_password_length must be positive", c.Auth.MinPasswordLength > 0)
		if _, err := auth.NewPasswordHasher(c.Auth.Hasher); err != nil {
			problems = append(problems, "auth.hasher: "+err.Error())
		}
		add("auth.login_rate must be positive", c.Auth.LoginRate > 0)
		add("auth.login_burst must be positive", c.Auth.LoginBurst > 0)
		switch c.Auth.Revocation {
		case RevocationMemory:
		case RevocationRedis:
			add("redis.url is required for redis revocation", c.Redis.URL != "")
		default:
			problems = append(problems, "auth.revocation must be memory or redis")
		}
	case RoleReservation:
		add("database.uri is required", c.Database.URI != "")
		add("reservation.http_addr must be host:port", isHostPort(c.Reservation.HTTPAddr))
		add("auth_client.addr must be host:port", isHostPort(c.AuthClient.Addr))
		add("payment_client.addr must be host:port", isHostPort(c.PaymentClient.Addr))
		add("payment_client.timeout must be positive", c.PaymentClient.Timeout > 0)
		add("gate.timeout must be positive", c.Gate.Timeout > 0)
	case RolePayment:
		add("database.uri is required", c.Database.URI != "")
		add("redis.url is required", c.Redis.URL != "")
		add("payment.grpc_addr must be host:port", isHostPort(c.Payment.GRPCAddr))
		add("auth_client.addr must be host:port", isHostPort(c.AuthClient.Addr))
		add("gate.timeout must be positive", c.Gate.Timeout > 0)
	case RoleNotification:
		add("redis.url is required", c.Redis.URL != "")
		add("notification.stream is required", c.Notification.Stream != "")
		add("notification.group is required", c.Notification.Group != "")
		add("notification.consumer is required", c.Notification.Consumer != "")
	case RoleMigrate:
		add("database.uri is required", c.Database.URI != "")
	default:
		problems = append(problems, "unknown role "+string(role))
	}

	if len(problems) == 0 {
		return nil
	}
	return oops.Code(apperr.CodeConfigInvalid).
		With("role", string(role)).
		With("problems", problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// Redacted returns a copy of c safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = "[redacted]"
	}
	out.Database.URI = redactURL(out.Database.URI)
	out.Redis.URL = redactURL(out.Redis.URL)
	return out
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if user, _, ok := strings.Cut(userinfo, ":"); ok {
		return raw[:scheme+3] + user + ":[redacted]" + raw[at:]
	}
	return raw
}

func isHostPort(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}

// ExistingFile returns path if it names a readable file, otherwise "".
func ExistingFile(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/pkg/errutil"
)

// isolateEnv unsets the variables Load reads so the host environment cannot
// leak into a test. t.Setenv restores them afterwards.
func isolateEnv(t *testing.T) {
	t.Helper()
	unset := func(key string) {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	for key := range legacyEnv {
		unset(key)
	}
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, EnvPrefix) {
			unset(key)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":3001", cfg.Auth.HTTPAddr)
	assert.Equal(t, "localhost:9001", cfg.AuthClient.Addr)
	assert.Equal(t, 5*time.Second, cfg.Gate.Timeout)
	assert.Equal(t, 5*time.Second, cfg.PaymentClient.Timeout)
	assert.Equal(t, 8, cfg.Auth.MinPasswordLength)
	assert.Equal(t, "argon2id", cfg.Auth.Hasher.Algorithm)
	assert.Equal(t, uint32(64*1024), cfg.Auth.Hasher.Argon2.Memory)
	assert.Nil(t, cfg.Auth.SecureCookie)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestValidate_AuthRequiresSecretExpirationAndDatabase(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	err = cfg.Validate(RoleAuth)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeConfigInvalid)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
	assert.Contains(t, err.Error(), "auth.jwt_expiration is required")
	assert.Contains(t, err.Error(), "database.uri is required")
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RESERVD_AUTH__JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("RESERVD_AUTH__JWT_EXPIRATION", "1h")
	t.Setenv("RESERVD_DATABASE__URI", "postgres://reservd:pw@localhost:5432/reservd")
	t.Setenv("RESERVD_GATE__TIMEOUT", "750ms")
	t.Setenv("RESERVD_PAYMENT_CLIENT__TIMEOUT", "3s")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(RoleAuth))

	ttl, err := cfg.JWTTTL()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)
	assert.Equal(t, 750*time.Millisecond, cfg.Gate.Timeout)
	assert.Equal(t, 3*time.Second, cfg.PaymentClient.Timeout)
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JWT_SECRET", "legacy-secret-0123456789")
	t.Setenv("JWT_EXPIRATION", "3600")
	t.Setenv("JWT_SECURE_COOKIE", "true")
	t.Setenv("MONGODB_URI", "postgres://localhost/reservd")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(RoleAuth))

	assert.Equal(t, "legacy-secret-0123456789", cfg.Auth.JWTSecret)
	require.NotNil(t, cfg.Auth.SecureCookie)
	assert.True(t, cfg.SecureCookie())

	ttl, err := cfg.JWTTTL()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)
}

func TestLoad_PrefixedWinsOverLegacy(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JWT_SECRET", "legacy-secret-0123456789")
	t.Setenv("RESERVD_AUTH__JWT_SECRET", "prefixed-secret-0123456789")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "prefixed-secret-0123456789", cfg.Auth.JWTSecret)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "reservd.yaml", `
environment: staging
auth:
  jwt_secret: from-file-0123456789
  jwt_expiration: 30m
  hasher:
    algorithm: bcrypt
    bcrypt_cost: 10
notification:
  stream: custom:stream
`)
	t.Setenv("RESERVD_NOTIFICATION__GROUP", "mailers")

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "from-file-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, "bcrypt", cfg.Auth.Hasher.Algorithm)
	assert.Equal(t, 10, cfg.Auth.Hasher.BcryptCost)
	assert.Equal(t, "custom:stream", cfg.Notification.Stream)
	assert.Equal(t, "mailers", cfg.Notification.Group)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	isolateEnv(t)

	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeConfigInvalid)
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, ".env", "RESERVD_REDIS__URL=redis://localhost:6379/2\n")
	t.Setenv("RESERVD_REDIS__URL", "")
	require.NoError(t, os.Unsetenv("RESERVD_REDIS__URL"))

	cfg, err := Load(LoadOptions{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)

	_, err = Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)
}

func TestLoad_FlagsWinAndAreRoleScoped(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RESERVD_LOG__FORMAT", "json")

	fs := pflag.NewFlagSet("reservation", pflag.ContinueOnError)
	RegisterFlags(fs, RoleReservation)
	require.NoError(t, fs.Parse([]string{
		"--log-format=text",
		"--http-addr=:8080",
		"--gate-timeout=2s",
	}))

	cfg, err := Load(LoadOptions{Flags: fs, Role: RoleReservation})
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Reservation.HTTPAddr)
	assert.Equal(t, ":3001", cfg.Auth.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.Gate.Timeout)
	assert.Equal(t, "localhost:9001", cfg.AuthClient.Addr, "unset flags keep lower layers")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		Log:           LogConfig{Format: "xml", Level: "loud"},
		Reservation:   ReservationConfig{HTTPAddr: "nohost"},
		AuthClient:    ClientConfig{Addr: ""},
		PaymentClient: PaymentClientConfig{Addr: "localhost:9003"},
	}

	err := cfg.Validate(RoleReservation)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeConfigInvalid)

	wantProblems := []string{
		"log.format", "log.level", "database.uri",
		"reservation.http_addr", "auth_client.addr", "gate.timeout",
		"payment_client.timeout must be positive",
	}
	for _, p := range wantProblems {
		assert.Contains(t, err.Error(), p)
	}
	assert.NotContains(t, err.Error(), "payment_client.addr")
}

func TestValidate_Roles(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: "development",
			Log:         LogConfig{Format: "json", Level: "info"},
			Database:    DatabaseConfig{URI: "postgres://localhost/reservd"},
			Redis:       RedisConfig{URL: "redis://localhost:6379"},
			Payment:     PaymentConfig{GRPCAddr: "localhost:9003"},
			AuthClient:  ClientConfig{Addr: "localhost:9001"},
			Gate:        GateConfig{Timeout: time.Second},
			Notification: NotificationConfig{
				Stream: "s", Group: "g", Consumer: "c",
			},
		}
	}

	assert.NoError(t, base().Validate(RolePayment))
	assert.NoError(t, base().Validate(RoleNotification))
	assert.NoError(t, base().Validate(RoleMigrate))

	noRedis := base()
	noRedis.Redis.URL = ""
	errutil.AssertErrorCode(t, noRedis.Validate(RoleNotification), apperr.CodeConfigInvalid)

	errutil.AssertErrorCode(t, base().Validate(Role("bogus")), apperr.CodeConfigInvalid)

	tlsNoDir := base()
	tlsNoDir.TLS.Enabled = true
	err := tlsNoDir.Validate(RoleMigrate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls.certs_dir")
}

func TestValidate_RedisRevocationNeedsRedis(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RESERVD_AUTH__JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("RESERVD_AUTH__JWT_EXPIRATION", "1d")
	t.Setenv("RESERVD_DATABASE__URI", "postgres://localhost/reservd")
	t.Setenv("RESERVD_AUTH__REVOCATION", "redis")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	err = cfg.Validate(RoleAuth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.url is required for redis revocation")
}

func TestSecureCookie(t *testing.T) {
	yes, no := true, false

	assert.False(t, (&Config{Environment: "development"}).SecureCookie())
	assert.True(t, (&Config{Environment: "development", Auth: AuthConfig{SecureCookie: &yes}}).SecureCookie())
	assert.True(t, (&Config{Environment: EnvironmentProduction}).SecureCookie())
	assert.True(t, (&Config{Environment: EnvironmentProduction, Auth: AuthConfig{SecureCookie: &no}}).SecureCookie())
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		Auth:     AuthConfig{JWTSecret: "super-secret-value"},
		Database: DatabaseConfig{URI: "postgres://reservd:hunter2@db:5432/reservd"},
		Redis:    RedisConfig{URL: "redis://localhost:6379"},
	}

	out := cfg.Redacted()
	assert.Equal(t, "[redacted]", out.Auth.JWTSecret)
	assert.Equal(t, "postgres://reservd:[redacted]@db:5432/reservd", out.Database.URI)
	assert.Equal(t, "redis://localhost:6379", out.Redis.URL)
	assert.Equal(t, "super-secret-value", cfg.Auth.JWTSecret)
}

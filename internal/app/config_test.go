package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/burnnote/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.True(t, cfg.Server.Debug)
	require.Equal(t, []string{"https://burnnote.example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, 3306, cfg.Database.MySQL.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "00112233445566778899aabbccddeeff", cfg.Vault.EncryptionKey)
	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "burnnote-test", cfg.Auth.JWT.Issuer)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, 2*time.Hour, cfg.Secrets.DefaultTTL)

	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 200, cfg.RateLimit.Global)
	require.Equal(t, 3, cfg.RateLimit.Sensitive)
	require.Equal(t, 30*time.Second, cfg.RateLimit.WindowOrDefault())

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, 1440*time.Hour, cfg.Maintenance.InactiveUserAge)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, "@every 5m", cfg.Maintenance.Schedules["secret_redaction"])
}

func TestLoadConfigDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("BURNNOTE_SERVER_PORT", "7070")
	t.Setenv("BURNNOTE_RATE_LIMIT_SENSITIVE", "10")
	t.Setenv("BURNNOTE_SECRETS_DEFAULT_TTL", "45m")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/burnnote.sqlite", cfg.Database.Path)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "burnnote", cfg.Auth.JWT.Issuer)
	require.Empty(t, cfg.Auth.JWT.Secret)
	require.Equal(t, 45*time.Minute, cfg.Secrets.DefaultTTL)
	require.Equal(t, 100, cfg.RateLimit.Global)
	require.Equal(t, 10, cfg.RateLimit.Sensitive)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.Equal(t, 720*time.Hour, cfg.Maintenance.InactiveUserAge)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigRejectsOutOfRangeValues(t *testing.T) {
	t.Setenv("BURNNOTE_SERVER_PORT", "70000")
	t.Setenv("BURNNOTE_SECRETS_DEFAULT_TTL", "720h")
	t.Setenv("BURNNOTE_RATE_LIMIT_SENSITIVE", "-1")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	require.ErrorContains(t, err, "server.port 70000 out of range")
	require.ErrorContains(t, err, "secrets.default_ttl 720h0m0s must be between")
	require.ErrorContains(t, err, "rate_limit limits must not be negative")
}

func TestAuthConfigAdapter(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "secret", Issuer: "issuer"}}
	require.Equal(t, auth.JWTConfig{Secret: "secret", Issuer: "issuer"}, cfg.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, defaultJWTIssuer, empty.JWTServiceConfig().Issuer)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}

func TestServiceOptionAdapters(t *testing.T) {
	require.Empty(t, SecretsConfig{}.SecretOptions())
	require.Len(t, SecretsConfig{DefaultTTL: time.Hour}.SecretOptions(), 1)

	maint := MaintenanceConfig{Schedules: map[string]string{"cache_purge": "@every 30m"}}
	require.Len(t, maint.CleanerOptions(), 3)

	redis := CacheConfig{Redis: RedisCacheConfig{Address: " 127.0.0.1:6379 ", Username: " user ", DB: 2}}.RedisClientConfig()
	require.Equal(t, "127.0.0.1:6379", redis.Address)
	require.Equal(t, "user", redis.Username)
	require.Equal(t, 2, redis.DB)
}

package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/charlesng35/burnnote/internal/services"
)

// EnvPrefix namespaces environment overrides, e.g. BURNNOTE_SERVER_PORT.
const EnvPrefix = "BURNNOTE"

// Config represents the runtime configuration for the burnnote server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFile         string        `mapstructure:"log_file"`
	Debug           bool          `mapstructure:"debug"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// VaultConfig holds the master key that wraps every per-secret data key.
type VaultConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures the signed bearer tokens.
type JWTSettings struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SecretsConfig controls secret defaults.
type SecretsConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// RateLimitConfig caps requests per client IP. Sensitive applies separately
// to login, code verification and secret viewing.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Global    int           `mapstructure:"global"`
	Sensitive int           `mapstructure:"sensitive"`
	Window    time.Duration `mapstructure:"window"`
}

// WindowOrDefault returns the rate limit window, falling back to one minute.
func (c RateLimitConfig) WindowOrDefault() time.Duration {
	if c.Window <= 0 {
		return time.Minute
	}
	return c.Window
}

// MaintenanceConfig controls the background cleanup jobs.
type MaintenanceConfig struct {
	Enabled            bool              `mapstructure:"enabled"`
	InactiveUserAge    time.Duration     `mapstructure:"inactive_user_age"`
	AuditRetentionDays int               `mapstructure:"audit_retention_days"`
	Schedules          map[string]string `mapstructure:"schedules"`
}

// LoadConfig reads config.yaml from ./config and paths, then applies
// BURNNOTE_* environment overrides. A .env file in the working directory is
// loaded first when present. Missing files are not an error.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults lists every key so environment overrides work without a file.
var defaults = map[string]any{
	"server.port":             8000,
	"server.log_level":        "info",
	"server.log_file":         "",
	"server.debug":            false,
	"server.cors_origins":     []string{},
	"server.shutdown_timeout": "15s",

	"database.driver":        "sqlite",
	"database.path":          "./data/burnnote.sqlite",
	"database.dsn":           "",
	"database.postgres.port": 5432,
	"database.mysql.port":    3306,

	"cache.redis.enabled":  false,
	"cache.redis.address":  "127.0.0.1:6379",
	"cache.redis.username": "",
	"cache.redis.password": "",
	"cache.redis.db":       0,
	"cache.redis.tls":      false,
	"cache.redis.timeout":  "5s",

	"vault.encryption_key": "",

	"monitoring.prometheus.enabled":   true,
	"monitoring.prometheus.endpoint":  "/metrics",
	"monitoring.health_check.enabled": true,

	"auth.jwt.secret": "",
	"auth.jwt.issuer": "burnnote",

	"email.smtp.enabled":  false,
	"email.smtp.host":     "",
	"email.smtp.port":     587,
	"email.smtp.username": "",
	"email.smtp.password": "",
	"email.smtp.from":     "",
	"email.smtp.use_tls":  true,
	"email.smtp.timeout":  "10s",

	"secrets.default_ttl": "24h",

	"rate_limit.enabled":   true,
	"rate_limit.global":    100,
	"rate_limit.sensitive": 5,
	"rate_limit.window":    "1m",

	"maintenance.enabled":              true,
	"maintenance.inactive_user_age":    "720h",
	"maintenance.audit_retention_days": 90,
}

// validate rejects values that would otherwise be silently replaced by a
// default further down the stack.
func (c *Config) validate() error {
	var errs error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if ttl := c.Secrets.DefaultTTL; ttl != 0 && (ttl < services.MinSecretTTL || ttl > services.MaxSecretTTL) {
		errs = multierr.Append(errs, fmt.Errorf("secrets.default_ttl %s must be between %s and %s",
			ttl, services.MinSecretTTL, services.MaxSecretTTL))
	}
	if c.RateLimit.Global < 0 || c.RateLimit.Sensitive < 0 {
		errs = multierr.Append(errs, errors.New("rate_limit limits must not be negative"))
	}
	if c.Maintenance.AuditRetentionDays < 0 {
		errs = multierr.Append(errs, errors.New("maintenance.audit_retention_days must not be negative"))
	}
	return errs
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/burnnote/internal/app"
	"github.com/charlesng35/burnnote/internal/database"
	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/services"
)

func sqliteConfig(t *testing.T, path string) *app.Config {
	t.Helper()
	return &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite", Path: path},
		Auth:     app.AuthConfig{JWT: app.JWTSettings{Issuer: "burnnote"}},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
		RateLimit:   app.RateLimitConfig{Enabled: true, Global: 100, Sensitive: 5, Window: time.Minute},
		Maintenance: app.MaintenanceConfig{Enabled: true},
	}
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver:   " PostgreSQL ",
		Postgres: app.DBAuthConfig{Host: " db.local ", Port: 5433, Database: "burnnote", Username: "app", Password: " secret "},
		MySQL:    app.DBAuthConfig{Host: "mysql.local", Port: 3306},
	}}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.local", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "burnnote", dbCfg.Name)
	require.Equal(t, "app", dbCfg.User)
	require.Equal(t, " secret ", dbCfg.Password)

	cfg.Database.Driver = "mariadb"
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql.local", dbCfg.Host)

	cfg.Database.Driver = ""
	cfg.Database.Path = "./data/x.sqlite"
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/x.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)
}

func TestBootstrapRuntimeReusesPersistedSecrets(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	path := filepath.Join(t.TempDir(), "burnnote.sqlite")

	first := sqliteConfig(t, path)
	stack, err := bootstrapRuntime(ctx, first, log)
	require.NoError(t, err)
	require.NotEmpty(t, first.Auth.JWT.Secret)
	require.NotEmpty(t, first.Vault.EncryptionKey)

	stored, err := database.GetSystemSetting(ctx, stack.DB, database.VaultMasterKeySetting)
	require.NoError(t, err)
	require.Equal(t, first.Vault.EncryptionKey, stored)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	owner := models.User{Email: "owner@example.com", IsActive: true}
	require.NoError(t, stack.DB.Create(&owner).Error)
	meta, err := stack.Secrets.Create(ctx, services.CreateSecretInput{OwnerID: owner.ID, Message: "survives restarts"})
	require.NoError(t, err)

	stack.Shutdown(ctx, log)

	second := sqliteConfig(t, path)
	restarted, err := bootstrapRuntime(ctx, second, log)
	require.NoError(t, err)
	t.Cleanup(func() { restarted.Shutdown(context.Background(), log) })

	require.Equal(t, first.Auth.JWT.Secret, second.Auth.JWT.Secret)
	require.Equal(t, first.Vault.EncryptionKey, second.Vault.EncryptionKey)

	view, err := restarted.Secrets.AttemptView(ctx, meta.ID, "")
	require.NoError(t, err)
	require.Equal(t, "survives restarts", view.Message)
}

func TestBootstrapRuntimeRejectsChangedMasterKey(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	path := filepath.Join(t.TempDir(), "burnnote.sqlite")

	cfg := sqliteConfig(t, path)
	cfg.Vault.EncryptionKey = "00112233445566778899aabbccddeeff"
	stack, err := bootstrapRuntime(ctx, cfg, log)
	require.NoError(t, err)
	stack.Shutdown(ctx, log)

	changed := sqliteConfig(t, path)
	changed.Vault.EncryptionKey = "ffeeddccbbaa99887766554433221100"
	_, err = bootstrapRuntime(ctx, changed, log)
	require.ErrorIs(t, err, database.ErrSettingMismatch)
}

func TestBootstrapRuntimeRejectsShortMasterKey(t *testing.T) {
	cfg := sqliteConfig(t, filepath.Join(t.TempDir(), "burnnote.sqlite"))
	cfg.Vault.EncryptionKey = "abcd"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "vault.encryption_key")
}

func TestRunCleanupInactive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "burnnote.sqlite")

	db, err := database.Open(database.Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	stale := time.Now().UTC().Add(-60 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Create(&models.User{Email: "stale@example.com", IsActive: true, LastLoginAt: &stale}).Error)
	require.NoError(t, db.Create(&models.User{Email: "admin@example.com", IsActive: true, IsAdmin: true, LastLoginAt: &stale}).Error)
	require.NoError(t, db.Create(&models.User{Email: "recent@example.com", IsActive: true, LastLoginAt: &recent}).Error)
	require.NoError(t, database.Close(db))

	configYAML := fmt.Sprintf("database:\n  driver: sqlite\n  path: %q\nmaintenance:\n  inactive_user_age: 720h\n", path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o600))

	require.NoError(t, run(context.Background(), []string{"-config", dir, "-cleanup-inactive"}))

	db, err = database.Open(database.Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	var emails []string
	require.NoError(t, db.Model(&models.User{}).Order("email").Pluck("email", &emails).Error)
	require.Equal(t, []string{"admin@example.com", "recent@example.com"}, emails)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestNewHTTPServerBoundsSlowClients(t *testing.T) {
	cfg := &app.Config{Server: app.ServerConfig{Port: 8088}}
	srv := newHTTPServer(cfg, http.NotFoundHandler())

	require.Equal(t, ":8088", srv.Addr)
	require.Equal(t, readHeaderTimeout, srv.ReadHeaderTimeout)
	require.Positive(t, srv.ReadTimeout)
	require.Positive(t, srv.WriteTimeout)
	require.Equal(t, maxHeaderBytes, srv.MaxHeaderBytes)
}

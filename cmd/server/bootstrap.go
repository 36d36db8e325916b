package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/api"
	"github.com/charlesng35/burnnote/internal/app"
	"github.com/charlesng35/burnnote/internal/app/maintenance"
	iauth "github.com/charlesng35/burnnote/internal/auth"
	"github.com/charlesng35/burnnote/internal/cache"
	"github.com/charlesng35/burnnote/internal/database"
	"github.com/charlesng35/burnnote/internal/middleware"
	"github.com/charlesng35/burnnote/internal/monitoring"
	"github.com/charlesng35/burnnote/internal/monitoring/checks"
	"github.com/charlesng35/burnnote/internal/security"
	"github.com/charlesng35/burnnote/internal/services"
	"github.com/charlesng35/burnnote/internal/vault"
	"github.com/charlesng35/burnnote/pkg/logger"
	"github.com/charlesng35/burnnote/pkg/mail"
)

const (
	// maintenanceMaxAge covers the daily jobs with an hour of slack.
	maintenanceMaxAge = 25 * time.Hour
	// redactionGrace is two runs of the default redaction schedule.
	redactionGrace = 30 * time.Minute
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Box       *vault.Box
	Gateway   *iauth.Gateway
	Secrets   *services.SecretService
	Audit     *services.AuditService
	Jobs      *monitoring.JobTracker
	Health    *monitoring.HealthManager
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine

	cleanerStarted bool
}

// bootstrapRuntime initialises the database, caches, services and the HTTP
// router. Maintenance jobs are built but not scheduled; see StartMaintenance.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	sources, err := app.ResolveRuntimeSecrets(ctx, stack.DB, cfg)
	if err != nil {
		return nil, err
	}
	for key, source := range sources {
		log.Info("runtime secret resolved", zap.String("key", key), zap.String("source", string(source)))
	}

	masterSecret, err := app.DecodeMasterKey(cfg.Vault.EncryptionKey)
	if err != nil {
		return nil, err
	}
	masterKey, err := vault.NewMasterKey(masterSecret)
	if err != nil {
		return nil, fmt.Errorf("initialise vault master key: %w", err)
	}
	stack.Box = vault.NewBox(masterKey)

	dbStore := cache.NewDatabaseStore(stack.DB)
	var store cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed rate limiting", zap.Error(err))
			stack.Redis = nil
		} else {
			store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	stack.RateStore = middleware.NewCacheRateStore(store)

	stack.Audit, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	users, err := services.NewUserService(stack.DB, stack.Audit)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	stack.Secrets, err = services.NewSecretService(stack.DB, stack.Box, stack.Audit, cfg.Secrets.SecretOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise secret service: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	tokens, err := iauth.NewTokenService(stack.DB, iauth.WithTokenCodec(jwtSvc))
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	otp, err := iauth.NewOTPService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; login codes can only be delivered in debug mode")
	}

	stack.Gateway, err = iauth.NewGateway(iauth.GatewayConfig{
		Users:  users,
		OTP:    otp,
		Tokens: tokens,
		Mailer: mailer,
		Audit:  stack.Audit,
		Debug:  cfg.Server.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise auth gateway: %w", err)
	}

	logSecurityReview(ctx, security.NewAuditService(stack.DB, jwtSvc, cfg).WithMasterKey(masterKey), log)

	stack.Jobs = monitoring.NewJobTracker()
	deps := maintenance.Dependencies{
		Tokens:  tokens,
		OTP:     otp,
		Secrets: stack.Secrets,
		Users:   users,
		Audit:   stack.Audit,
		Cache:   dbStore,
		Tracker: stack.Jobs,
	}
	stack.Cleaner = maintenance.NewCleaner(deps, cfg.Maintenance.CleanerOptions()...)

	stack.Health = monitoring.NewHealthManager()
	stack.Health.Register(checks.Database(stack.DB), monitoring.Liveness|monitoring.Readiness)
	stack.Health.Register(checks.Schema(stack.DB, database.CoreModels()...), monitoring.Readiness)
	stack.Health.Register(checks.Vault(stack.Box, stack.DB), monitoring.Readiness)
	if stack.Redis != nil {
		stack.Health.Register(checks.Redis(stack.Redis, true), monitoring.Readiness)
	} else {
		stack.Health.Register(checks.Redis(nil, cfg.Cache.Redis.Enabled), monitoring.Readiness)
	}
	if cfg.Maintenance.Enabled {
		stack.Health.Register(checks.Maintenance(stack.Jobs, maintenanceMaxAge), monitoring.Readiness)
		stack.Health.Register(checks.Redaction(stack.DB, redactionGrace, nil), monitoring.Readiness)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		Gateway:   stack.Gateway,
		Secrets:   stack.Secrets,
		Audit:     stack.Audit,
		Health:    stack.Health,
		Jobs:      stack.Jobs,
		RateStore: stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// logSecurityReview reports weak settings. It never blocks start-up.
func logSecurityReview(ctx context.Context, review *security.AuditService, log *zap.Logger) {
	result := review.Run(ctx)
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
}

// StartMaintenance schedules the periodic cleanup jobs.
func (s *runtimeStack) StartMaintenance() error {
	if err := s.Cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	s.cleanerStarted = true
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil && s.cleanerStarted {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}

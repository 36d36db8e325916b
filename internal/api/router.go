package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/burnnote/internal/app"
	iauth "github.com/charlesng35/burnnote/internal/auth"
	"github.com/charlesng35/burnnote/internal/handlers"
	"github.com/charlesng35/burnnote/internal/middleware"
	"github.com/charlesng35/burnnote/internal/monitoring"
	"github.com/charlesng35/burnnote/internal/services"
)

// Dependencies are the long-lived services the HTTP layer routes to.
type Dependencies struct {
	Gateway   *iauth.Gateway
	Secrets   *services.SecretService
	Audit     *services.AuditService
	Health    *monitoring.HealthManager
	Jobs      *monitoring.JobTracker
	RateStore middleware.RateStore
}

// Rate limit scopes for the throttled public endpoints.
const (
	scopeLogin  = "auth-login"
	scopeVerify = "auth-verify"
	scopeView   = "secret-view"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
// Secret viewing and metadata live on the public group so they never pass
// through bearer authentication.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Gateway == nil {
		return nil, errors.New("auth gateway must be provided")
	}
	if deps.Secrets == nil {
		return nil, errors.New("secret service must be provided")
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestActor())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	limits := newLimiter(cfg.RateLimit, deps.RateStore)
	r.Use(limits.global())

	registerHealthRoutes(r, cfg, handlers.NewHealthHandler(deps.Health, deps.Jobs))

	authHandler := handlers.NewAuthHandler(deps.Gateway)
	secretHandler := handlers.NewSecretHandler(deps.Secrets)
	requireAuth := middleware.Auth(deps.Gateway)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", limits.scoped(scopeLogin), authHandler.Login)
		auth.POST("/verify-otp", limits.scoped(scopeVerify), authHandler.VerifyOTP)
	}

	// Authenticated auth routes
	session := r.Group("/api/auth", requireAuth)
	{
		session.GET("/me", authHandler.Me)
		session.POST("/logout", authHandler.Logout)
		if deps.Audit != nil {
			session.GET("/activity", handlers.NewAuditHandler(deps.Audit).List)
		}
	}

	// Share links
	shared := r.Group("/api/secrets")
	{
		shared.GET("/:id", secretHandler.Get)
		shared.POST("/:id/view", limits.scoped(scopeView), secretHandler.View)
	}

	owned := r.Group("/api/secrets", requireAuth)
	{
		owned.POST("", secretHandler.Create)
		owned.GET("", secretHandler.List)
		owned.DELETE("/:id", secretHandler.Destroy)
		owned.POST("/:id/destroy", secretHandler.Destroy)
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

type limiter struct {
	cfg   app.RateLimitConfig
	store middleware.RateStore
}

func newLimiter(cfg app.RateLimitConfig, store middleware.RateStore) limiter {
	return limiter{cfg: cfg, store: store}
}

// global counts per client IP and route.
func (l limiter) global() gin.HandlerFunc {
	return l.build("", l.cfg.Global)
}

// scoped counts per client IP within a named scope.
func (l limiter) scoped(scope string) gin.HandlerFunc {
	return l.build(scope, l.cfg.Sensitive)
}

func (l limiter) build(scope string, limit int) gin.HandlerFunc {
	if !l.cfg.Enabled {
		limit = 0
	}
	return middleware.RateLimit(middleware.RateLimitConfig{
		Scope:  scope,
		Limit:  limit,
		Window: l.cfg.WindowOrDefault(),
		Store:  l.store,
	})
}

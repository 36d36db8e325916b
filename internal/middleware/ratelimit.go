package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/logger"
	"github.com/charlesng35/burnnote/pkg/response"
)

// RateLimitConfig describes a fixed-window limit. Requests are counted per
// client IP within Scope; an empty Scope counts per route instead.
type RateLimitConfig struct {
	Scope  string
	Limit  int
	Window time.Duration
	Store  RateStore
}

// RateLimit rejects requests beyond cfg.Limit within cfg.Window with 429.
// Counter store failures let the request through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryRateStore()
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		if cfg.Limit <= 0 {
			c.Next()
			return
		}

		scope := cfg.Scope
		if scope == "" {
			scope = c.FullPath()
			if scope == "" {
				scope = c.Request.URL.Path
			}
		}
		key := "ratelimit:" + scope + ":" + c.ClientIP()

		count, ttl, err := cfg.Store.Increment(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate limit store unavailable",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		reset := int(math.Ceil(ttl.Seconds()))
		if reset < 0 {
			reset = 0
		}
		remaining := cfg.Limit - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > cfg.Limit {
			c.Header("Retry-After", strconv.Itoa(reset))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}

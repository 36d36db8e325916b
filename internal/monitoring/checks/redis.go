package checks

import (
	"context"
	"time"

	"github.com/charlesng35/burnnote/internal/monitoring"
)

// RedisPinger is the part of cache.RedisStore the check needs.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis checks the rate-limit counter store. Limits fall back to the database
// when Redis is gone, so the check is optional: it degrades, never fails.
func Redis(client RedisPinger, enabled bool) monitoring.Check {
	return monitoring.Optional("redis", func(ctx context.Context) monitoring.CheckResult {
		switch {
		case !enabled:
			return monitoring.CheckResult{Status: monitoring.StatusUp, Details: "disabled; rate limits use the database"}
		case client == nil:
			return monitoring.CheckResult{Status: monitoring.StatusDegraded, Details: "unreachable at start-up; rate limits use the database"}
		}

		start := time.Now()
		result := monitoring.FromError(client.Ping(ctx), start)
		if result.Status == monitoring.StatusDown {
			result.Status = monitoring.StatusDegraded
		}
		return result
	})
}

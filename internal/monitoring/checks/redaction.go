package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/monitoring"
)

// Redaction degrades readiness while expired secrets keep their key material
// longer than grace past expiry. It watches the outcome of the redaction job
// in the data, so it also fires when the scheduler silently stopped.
func Redaction(db *gorm.DB, grace time.Duration, now func() time.Time) monitoring.Check {
	if now == nil {
		now = time.Now
	}
	return monitoring.Optional("redaction", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		if db == nil {
			return monitoring.CheckResult{Status: monitoring.StatusDegraded, Details: "database not configured"}
		}

		var backlog int64
		err := db.WithContext(ctx).
			Model(&models.Secret{}).
			Where("redacted_at IS NULL AND expires_at < ?", now().UTC().Add(-grace)).
			Count(&backlog).Error
		if err != nil {
			return monitoring.FromError(err, start)
		}
		if backlog > 0 {
			return monitoring.CheckResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("%d expired secrets still hold key material", backlog),
				Duration: time.Since(start),
			}
		}
		return monitoring.FromError(nil, start)
	})
}

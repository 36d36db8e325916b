package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/monitoring"
)

// Database pings the connection pool. It is the only liveness check: without
// the database neither logins nor secrets work.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.Critical("database", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		if db == nil {
			return monitoring.CheckResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		return monitoring.FromError(err, start)
	})
}

// Schema reports down until every model's table exists, so a node that has
// not finished migrating never receives traffic.
func Schema(db *gorm.DB, models ...any) monitoring.Check {
	return monitoring.Critical("schema", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		if db == nil {
			return monitoring.CheckResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		migrator := db.WithContext(ctx).Migrator()
		var missing []string
		for _, model := range models {
			if !migrator.HasTable(model) {
				missing = append(missing, tableName(db, model))
			}
		}
		if len(missing) > 0 {
			return monitoring.FromError(fmt.Errorf("missing tables: %s", strings.Join(missing, ", ")), start)
		}
		return monitoring.FromError(ctx.Err(), start)
	})
}

func tableName(db *gorm.DB, model any) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return fmt.Sprintf("%T", model)
	}
	return stmt.Schema.Table
}

package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/models"
)

// CoreModels lists every persisted model, owners before dependents.
func CoreModels() []any {
	return []any{
		&models.User{},
		&models.Secret{},
		&models.OneTimeCode{},
		&models.SessionToken{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(CoreModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

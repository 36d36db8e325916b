package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/burnnote/internal/models"
)

// Keys for installation-wide secrets that must survive restarts.
const (
	VaultMasterKeySetting = "vault.master_key"
	JWTSecretSetting      = "auth.jwt_secret"
)

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Take(&setting).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{Key: key, Value: value}
	if err := db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}
	return nil
}

// SettingSource describes where a resolved setting came from.
type SettingSource string

const (
	SettingFromConfig    SettingSource = "config"
	SettingFromDatabase  SettingSource = "database"
	SettingFromGenerator SettingSource = "generated"
)

// ErrSettingMismatch is returned when the configured value differs from the
// one already persisted. Secrets sealed under the stored value would become
// unreadable, so the caller must resolve the conflict explicitly.
var ErrSettingMismatch = errors.New("system settings: configured value differs from stored value")

// ResolveSetting returns the value for key. A configured value wins and is
// persisted on first use; otherwise the stored value is used; otherwise
// generate is called and its result persisted.
func ResolveSetting(ctx context.Context, db *gorm.DB, key, configured string, generate func() (string, error)) (string, SettingSource, error) {
	configured = strings.TrimSpace(configured)

	stored, err := GetSystemSetting(ctx, db, key)
	if err != nil {
		return "", "", err
	}
	stored = strings.TrimSpace(stored)

	switch {
	case configured != "" && stored == "":
		if err := UpsertSystemSetting(ctx, db, key, configured); err != nil {
			return "", "", err
		}
		return configured, SettingFromConfig, nil
	case configured != "" && stored != configured:
		return "", "", fmt.Errorf("%w: %s", ErrSettingMismatch, key)
	case configured != "":
		return configured, SettingFromConfig, nil
	case stored != "":
		return stored, SettingFromDatabase, nil
	}

	if generate == nil {
		return "", "", fmt.Errorf("system settings: no value for %q", key)
	}
	value, err := generate()
	if err != nil {
		return "", "", fmt.Errorf("system settings: generate %q: %w", key, err)
	}
	if err := UpsertSystemSetting(ctx, db, key, value); err != nil {
		return "", "", err
	}
	return value, SettingFromGenerator, nil
}

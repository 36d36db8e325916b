package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/database"
	"github.com/charlesng35/burnnote/pkg/crypto"
)

const (
	jwtSecretBytes   = 48
	vaultSecretBytes = 32
)

// ResolveRuntimeSecrets fills the JWT secret and vault master key. Values
// from configuration win and are pinned in system settings on first start;
// missing values are loaded from settings or generated once. The returned map
// reports where each value came from so callers can log it without exposing it.
func ResolveRuntimeSecrets(ctx context.Context, db *gorm.DB, cfg *Config) (map[string]database.SettingSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	// an unusable key must not be pinned
	if strings.TrimSpace(cfg.Vault.EncryptionKey) != "" {
		if _, err := DecodeMasterKey(cfg.Vault.EncryptionKey); err != nil {
			return nil, err
		}
	}

	sources := make(map[string]database.SettingSource, 2)

	secret, source, err := database.ResolveSetting(ctx, db, database.JWTSecretSetting, cfg.Auth.JWT.Secret, func() (string, error) {
		return crypto.GenerateToken(jwtSecretBytes)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve jwt secret: %w", err)
	}
	cfg.Auth.JWT.Secret = secret
	sources["auth.jwt.secret"] = source

	key, source, err := database.ResolveSetting(ctx, db, database.VaultMasterKeySetting, cfg.Vault.EncryptionKey, func() (string, error) {
		return generateHexKey(vaultSecretBytes)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve vault encryption key: %w", err)
	}
	cfg.Vault.EncryptionKey = key
	sources["vault.encryption_key"] = source

	return sources, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/monitoring"
)

// KeyBox is the subset of vault.Box exercised by the vault check.
type KeyBox interface {
	Seal(plaintext []byte) ([]byte, string, error)
	Open(ciphertext []byte, storedKey string) ([]byte, error)
	CheckKey(storedKey string) error
}

var vaultCanary = []byte("burnnote-readiness")

// Vault round-trips a throwaway payload through the box, then checks that the
// newest live secret's key still unwraps. The second step catches a master
// key that changed under existing data; no stored message is decrypted.
func Vault(box KeyBox, db *gorm.DB) monitoring.Check {
	return monitoring.Critical("vault", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		if box == nil {
			return monitoring.CheckResult{Status: monitoring.StatusDown, Details: "vault not configured"}
		}

		ciphertext, key, err := box.Seal(vaultCanary)
		if err != nil {
			return monitoring.FromError(err, start)
		}
		plaintext, err := box.Open(ciphertext, key)
		if err == nil && !bytes.Equal(plaintext, vaultCanary) {
			err = errors.New("round trip mismatch")
		}
		if err != nil || db == nil {
			return monitoring.FromError(err, start)
		}

		var stored models.Secret
		err = db.WithContext(ctx).
			Select("id", "encryption_key").
			Where("is_viewed = ? AND is_destroyed = ? AND redacted_at IS NULL", false, false).
			Order("created_at DESC").
			Take(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return monitoring.FromError(nil, start)
		}
		if err != nil {
			return monitoring.FromError(err, start)
		}
		if err := box.CheckKey(stored.EncryptionKey); err != nil {
			return monitoring.FromError(fmt.Errorf("secret %s: key does not unwrap with the configured master key", stored.ID), start)
		}
		return monitoring.FromError(nil, start)
	})
}

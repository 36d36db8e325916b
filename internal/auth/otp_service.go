package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/pkg/crypto"
	"github.com/charlesng35/burnnote/pkg/metrics"
)

// OTPTTL is how long an emailed login code stays valid.
const OTPTTL = 10 * time.Minute

const otpSecretBytes = 20

var (
	// ErrOTPNotFound indicates no unused code matches the submission.
	ErrOTPNotFound = errors.New("otp: code not found")
	// ErrOTPExpired signals the matching code is past its expiry.
	ErrOTPExpired = errors.New("otp: code expired")
)

var otpOpts = hotp.ValidateOpts{Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}

// OTPOption customises an OTPService.
type OTPOption func(*OTPService)

// WithOTPClock overrides the time source.
func WithOTPClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		if now != nil {
			s.now = now
		}
	}
}

// OTPService issues and verifies six digit login codes. Only digests are stored.
type OTPService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOTPService constructs an OTPService.
func NewOTPService(db *gorm.DB, opts ...OTPOption) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}
	svc := &OTPService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue replaces any outstanding codes for userID with a fresh one and
// returns it in clear text for delivery.
func (s *OTPService) Issue(ctx context.Context, userID string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", userID).
			Take(&user).Error; err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		if err := tx.Where("user_id = ? AND is_used = ?", userID, false).
			Delete(&models.OneTimeCode{}).Error; err != nil {
			return fmt.Errorf("invalidate previous codes: %w", err)
		}

		record := &models.OneTimeCode{
			UserID:    userID,
			CodeHash:  crypto.HashToken(code),
			ExpiresAt: s.now().Add(OTPTTL),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("persist code: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("otp service: issue: %w", err)
	}

	metrics.OTPIssued.Inc()
	return code, nil
}

// Verify consumes the latest unused code for userID matching code.
func (s *OTPService) Verify(ctx context.Context, userID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrOTPNotFound
	}

	var record models.OneTimeCode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND code_hash = ? AND is_used = ?", userID, crypto.HashToken(code), false).
		Order("created_at DESC").
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("otp service: load code: %w", err)
	}

	now := s.now()
	if record.IsExpired(now) {
		return ErrOTPExpired
	}

	result := s.db.WithContext(ctx).
		Model(&models.OneTimeCode{}).
		Where("id = ? AND is_used = ?", record.ID, false).
		Updates(map[string]any{"is_used": true, "used_at": now})
	if result.Error != nil {
		return fmt.Errorf("otp service: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOTPNotFound
	}
	return nil
}

// CleanupExpired removes codes that are used or past expiry.
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("is_used = ? OR expires_at < ?", true, s.now()).
		Delete(&models.OneTimeCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("otp service: cleanup expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// generateCode derives a six digit HOTP value from a throwaway random secret
// and counter, so codes carry no relationship to each other.
func generateCode() (string, error) {
	raw := make([]byte, otpSecretBytes+8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("otp service: read random: %w", err)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw[:otpSecretBytes])
	counter := binary.BigEndian.Uint64(raw[otpSecretBytes:])

	code, err := hotp.GenerateCodeCustom(secret, counter, otpOpts)
	if err != nil {
		return "", fmt.Errorf("otp service: generate code: %w", err)
	}
	return code, nil
}

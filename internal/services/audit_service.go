package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/auditctx"
	"github.com/charlesng35/burnnote/internal/models"
)

// Audit actions.
const (
	AuditSecretCreate   = "secret.create"
	AuditSecretView     = "secret.view"
	AuditSecretDestroy  = "secret.destroy"
	AuditSecretExpire   = "secret.expire"
	AuditSecretCorrupt  = "secret.corrupt"
	AuditAuthRegister   = "auth.register"
	AuditAuthLogin      = "auth.login"
	AuditAuthVerifyOTP  = "auth.verify_otp"
	AuditAuthLogout     = "auth.logout"
	AuditUserInactivity = "user.inactive_cleanup"
)

const (
	maxUserAgentLen   = 512
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// Metadata keys that could carry secret material are dropped before storage.
var sensitiveMetadataKeys = map[string]struct{}{
	"message":        {},
	"passphrase":     {},
	"ciphertext":     {},
	"encryption_key": {},
	"code":           {},
	"token":          {},
}

// AuditEntry is one event to persist. Empty request fields are taken from the
// auditctx.Actor on the context.
type AuditEntry struct {
	UserID    *string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

func (e AuditEntry) withActor(ctx context.Context) AuditEntry {
	actor, ok := auditctx.FromContext(ctx)
	if !ok {
		return e
	}
	if e.IPAddress == "" {
		e.IPAddress = actor.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = actor.UserAgent
	}
	if e.UserID == nil && actor.UserID != "" {
		id := actor.UserID
		e.UserID = &id
	}
	return e
}

func (e AuditEntry) record() models.AuditLog {
	row := models.AuditLog{
		Action:    strings.TrimSpace(e.Action),
		Resource:  strings.TrimSpace(e.Resource),
		Result:    strings.TrimSpace(e.Result),
		IPAddress: strings.TrimSpace(e.IPAddress),
		UserAgent: strings.TrimSpace(e.UserAgent),
	}
	if len(row.UserAgent) > maxUserAgentLen {
		row.UserAgent = row.UserAgent[:maxUserAgentLen]
	}
	if e.UserID != nil {
		if id := strings.TrimSpace(*e.UserID); id != "" {
			row.UserID = &id
		}
	}

	meta := make(datatypes.JSONMap, len(e.Metadata))
	for k, v := range e.Metadata {
		if _, secret := sensitiveMetadataKeys[strings.ToLower(k)]; !secret {
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		row.Metadata = meta
	}
	return row
}

// AuditService stores the per-user activity trail.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService returns an AuditService backed by db.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Log stores entry. Action and Result are required.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	row := entry.withActor(ctx).record()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("audit service: create log: %w", err)
	}
	return nil
}

// Record logs entry and drops any error, so a broken audit trail never fails
// the operation being audited. It is safe on a nil service.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil {
		return
	}
	_ = s.Log(ctx, entry)
}

// ListForUser returns a user's most recent entries, newest first. Limits
// outside 1..200 fall back to 50.
func (s *AuditService) ListForUser(ctx context.Context, userID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}

	var logs []models.AuditLog
	err := s.db.WithContext(ensureContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan deletes entries older than retentionDays.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ensureContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/vault"
	apperrors "github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/logger"
	"github.com/charlesng35/burnnote/pkg/metrics"
)

// Secret lifetime bounds.
const (
	MinSecretTTL     = time.Minute
	MaxSecretTTL     = 7 * 24 * time.Hour
	DefaultSecretTTL = 24 * time.Hour
)

// CreateSecretInput describes a new secret. A zero TTL selects the service default.
type CreateSecretInput struct {
	OwnerID    string
	Message    string
	Passphrase string
	TTL        time.Duration
	Animation  string
}

// SecretMetadata is the non-sensitive view of a secret.
type SecretMetadata struct {
	ID                   string             `json:"id"`
	CreatedAt            time.Time          `json:"created_at"`
	ExpiresAt            time.Time          `json:"expires_at"`
	HasPassphrase        bool               `json:"has_passphrase"`
	DestructionAnimation string             `json:"destruction_animation"`
	State                models.SecretState `json:"state"`
	Expired              bool               `json:"expired"`
	ViewedAt             *time.Time         `json:"viewed_at,omitempty"`
	DestroyedAt          *time.Time         `json:"destroyed_at,omitempty"`
}

// Public strips what only the owner may learn. Anyone holding the link sees a
// terminal secret as consumed, without telling a read from a destroy.
func (m SecretMetadata) Public() SecretMetadata {
	if m.State == models.SecretStateLive {
		return m
	}
	m.State = models.SecretStateConsumed
	m.Expired = false
	m.ViewedAt = nil
	m.DestroyedAt = nil
	return m
}

// ViewResult is returned by a successful AttemptView. The plaintext lives only
// here and is never written back to the secret.
type ViewResult struct {
	Message  string         `json:"message"`
	Metadata SecretMetadata `json:"metadata"`
}

// SecretService owns the secret lifecycle: LIVE then exactly one of VIEWED or
// DESTROYED. Every transition out of LIVE is a conditional UPDATE so that
// concurrent callers cannot both win.
type SecretService struct {
	db           *gorm.DB
	box          *vault.Box
	gate         *vault.PassphraseGate
	auditService *AuditService
	now          func() time.Time
	defaultTTL   time.Duration
	log          *zap.Logger
}

// SecretOption customises a SecretService.
type SecretOption func(*SecretService)

// WithSecretClock overrides the time source.
func WithSecretClock(now func() time.Time) SecretOption {
	return func(s *SecretService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultSecretTTL sets the lifetime used when a caller omits one.
func WithDefaultSecretTTL(ttl time.Duration) SecretOption {
	return func(s *SecretService) {
		if ttl >= MinSecretTTL && ttl <= MaxSecretTTL {
			s.defaultTTL = ttl
		}
	}
}

// WithPassphraseGate overrides the passphrase hasher.
func WithPassphraseGate(gate *vault.PassphraseGate) SecretOption {
	return func(s *SecretService) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// NewSecretService constructs a SecretService.
func NewSecretService(db *gorm.DB, box *vault.Box, auditService *AuditService, opts ...SecretOption) (*SecretService, error) {
	if db == nil {
		return nil, errors.New("secret service: db is required")
	}
	if box == nil {
		return nil, errors.New("secret service: box is required")
	}

	svc := &SecretService{
		db:           db,
		box:          box,
		gate:         vault.DefaultPassphraseGate(),
		auditService: auditService,
		now:          func() time.Time { return time.Now().UTC() },
		defaultTTL:   DefaultSecretTTL,
		log:          logger.WithModule("secrets"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// DefaultTTL returns the lifetime applied when none is requested.
func (s *SecretService) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Create seals and stores a new LIVE secret.
func (s *SecretService) Create(ctx context.Context, input CreateSecretInput) (*SecretMetadata, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, apperrors.ErrEmptyMessage
	}

	ttl := input.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl < MinSecretTTL || ttl > MaxSecretTTL {
		return nil, apperrors.ErrInvalidTTL
	}

	animation := strings.ToLower(strings.TrimSpace(input.Animation))
	if animation == "" {
		animation = models.AnimationNone
	}
	if !models.ValidAnimation(animation) {
		return nil, apperrors.ErrInvalidAnimation
	}

	ciphertext, storedKey, err := s.box.Seal([]byte(input.Message))
	if err != nil {
		return nil, fmt.Errorf("secret service: seal: %w", err)
	}

	secret := &models.Secret{
		UserID:               input.OwnerID,
		Ciphertext:           ciphertext,
		EncryptionKey:        storedKey,
		ExpiresAt:            s.now().Add(ttl),
		DestructionAnimation: animation,
	}

	if input.Passphrase != "" {
		digest, err := s.gate.Hash(input.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("secret service: hash passphrase: %w", err)
		}
		secret.PassphraseHash = digest
		secret.HasPassphrase = true
	}

	if err := s.db.WithContext(ctx).Create(secret).Error; err != nil {
		return nil, fmt.Errorf("secret service: create: %w", err)
	}

	metrics.SecretsCreated.WithLabelValues(fmt.Sprint(secret.HasPassphrase)).Inc()
	s.auditService.Record(ctx, AuditEntry{
		UserID:   &secret.UserID,
		Action:   AuditSecretCreate,
		Resource: "secret:" + secret.ID,
		Result:   models.AuditResultSuccess,
		Metadata: map[string]any{
			"expires_at":     secret.ExpiresAt.Format(time.RFC3339),
			"has_passphrase": secret.HasPassphrase,
		},
	})

	meta := s.metadata(secret)
	return &meta, nil
}

// Get returns metadata for a secret without consuming it. Callers serving
// anyone but the owner must pass the result through Public.
func (s *SecretService) Get(ctx context.Context, id string) (*SecretMetadata, error) {
	secret, err := s.load(ensureContext(ctx), id)
	if err != nil {
		return nil, err
	}
	meta := s.metadata(secret)
	return &meta, nil
}

// ListByOwner returns the owner's secrets, newest first.
func (s *SecretService) ListByOwner(ctx context.Context, ownerID string) ([]SecretMetadata, error) {
	ctx = ensureContext(ctx)

	var secrets []models.Secret
	if err := s.db.WithContext(ctx).
		Omit("ciphertext", "encryption_key", "passphrase_hash").
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&secrets).Error; err != nil {
		return nil, fmt.Errorf("secret service: list: %w", err)
	}

	out := make([]SecretMetadata, 0, len(secrets))
	for i := range secrets {
		out = append(out, s.metadata(&secrets[i]))
	}
	return out, nil
}

// AttemptView performs the single permitted read of a secret. The checks run
// in a fixed order: existence, state, expiry, passphrase, integrity. Only the
// caller whose conditional update flips the secret to VIEWED gets the plaintext.
func (s *SecretService) AttemptView(ctx context.Context, id, passphrase string) (*ViewResult, error) {
	ctx = ensureContext(ctx)

	secret, err := s.load(ctx, id)
	if err != nil {
		s.countView("not_found")
		return nil, err
	}

	if !secret.IsLive() {
		s.countView("consumed")
		return nil, apperrors.ErrSecretConsumed
	}

	now := s.now()
	if secret.IsExpired(now) {
		won, err := s.transitionOut(ctx, secret.ID, now, "is_destroyed", "destroyed_at")
		if err != nil {
			return nil, err
		}
		if !won {
			s.countView("consumed")
			return nil, apperrors.ErrSecretConsumed
		}
		s.countView("expired")
		metrics.SecretsDestroyed.WithLabelValues("expired").Inc()
		s.auditService.Record(ctx, AuditEntry{
			UserID:   &secret.UserID,
			Action:   AuditSecretExpire,
			Resource: "secret:" + secret.ID,
			Result:   models.AuditResultSuccess,
		})
		return nil, apperrors.ErrSecretExpired
	}

	if secret.HasPassphrase {
		if passphrase == "" {
			s.countView("passphrase_required")
			return nil, apperrors.ErrPassphraseRequired
		}
		if !s.gate.Verify(secret.PassphraseHash, passphrase) {
			s.countView("passphrase_invalid")
			s.auditService.Record(ctx, AuditEntry{
				Action:   AuditSecretView,
				Resource: "secret:" + secret.ID,
				Result:   models.AuditResultFailure,
				Metadata: map[string]any{"reason": "invalid_passphrase"},
			})
			return nil, apperrors.ErrInvalidPassphrase
		}
	}

	plaintext, err := s.box.Open(secret.Ciphertext, secret.EncryptionKey)
	if err != nil {
		s.countView("corrupt")
		s.log.Error("secret failed integrity check",
			zap.String("secret_id", secret.ID),
			zap.Error(err),
		)
		s.auditService.Record(ctx, AuditEntry{
			Action:   AuditSecretCorrupt,
			Resource: "secret:" + secret.ID,
			Result:   models.AuditResultFailure,
		})
		return nil, apperrors.ErrSecretCorrupt.WithInternal(err)
	}

	won, err := s.transitionOut(ctx, secret.ID, now, "is_viewed", "viewed_at")
	if err != nil {
		return nil, err
	}
	if !won {
		s.countView("consumed")
		return nil, apperrors.ErrSecretConsumed
	}

	s.countView("viewed")
	s.auditService.Record(ctx, AuditEntry{
		Action:   AuditSecretView,
		Resource: "secret:" + secret.ID,
		Result:   models.AuditResultSuccess,
	})

	secret.IsViewed = true
	secret.ViewedAt = &now
	return &ViewResult{
		Message:  string(plaintext),
		Metadata: s.metadata(secret).Public(),
	}, nil
}

// Destroy lets the owner discard a secret before it is read. Destroying an
// already viewed or destroyed secret is a no-op.
func (s *SecretService) Destroy(ctx context.Context, id, ownerID string) error {
	ctx = ensureContext(ctx)

	secret, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if secret.UserID != ownerID {
		return apperrors.ErrSecretForbidden
	}
	if !secret.IsLive() {
		return nil
	}

	won, err := s.transitionOut(ctx, secret.ID, s.now(), "is_destroyed", "destroyed_at")
	if err != nil {
		return err
	}
	if won {
		metrics.SecretsDestroyed.WithLabelValues("owner").Inc()
		s.auditService.Record(ctx, AuditEntry{
			UserID:   &secret.UserID,
			Action:   AuditSecretDestroy,
			Resource: "secret:" + secret.ID,
			Result:   models.AuditResultSuccess,
		})
	}
	return nil
}

// RedactExpired clears the key material of LIVE secrets whose expiry has
// passed. Their state is left untouched so the next access still reports
// expiry before moving them to DESTROYED.
func (s *SecretService) RedactExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	result := s.db.WithContext(ctx).
		Model(&models.Secret{}).
		Where("redacted_at IS NULL AND expires_at < ?", now).
		Updates(redactionColumns(now))
	if result.Error != nil {
		return 0, fmt.Errorf("secret service: redact expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// transitionOut moves a LIVE secret to a terminal state and drops its key
// material in the same statement. It reports whether this caller won.
func (s *SecretService) transitionOut(ctx context.Context, id string, now time.Time, flag, stamp string) (bool, error) {
	updates := redactionColumns(now)
	updates[flag] = true
	updates[stamp] = now

	result := s.db.WithContext(ctx).
		Model(&models.Secret{}).
		Where("id = ? AND is_viewed = ? AND is_destroyed = ?", id, false, false).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("secret service: transition %s: %w", flag, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func redactionColumns(now time.Time) map[string]any {
	return map[string]any{
		"ciphertext":      nil,
		"encryption_key":  "",
		"passphrase_hash": "",
		"redacted_at":     now,
	}
}

func (s *SecretService) load(ctx context.Context, id string) (*models.Secret, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrSecretNotFound
	}

	var secret models.Secret
	err := s.db.WithContext(ctx).Take(&secret, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("secret service: load: %w", err)
	}
	return &secret, nil
}

func (s *SecretService) metadata(secret *models.Secret) SecretMetadata {
	return SecretMetadata{
		ID:                   secret.ID,
		CreatedAt:            secret.CreatedAt,
		ExpiresAt:            secret.ExpiresAt,
		HasPassphrase:        secret.HasPassphrase,
		DestructionAnimation: secret.DestructionAnimation,
		State:                secret.State(),
		Expired:              secret.IsLive() && secret.IsExpired(s.now()),
		ViewedAt:             secret.ViewedAt,
		DestroyedAt:          secret.DestroyedAt,
	}
}

func (s *SecretService) countView(outcome string) {
	metrics.SecretViews.WithLabelValues(outcome).Inc()
}

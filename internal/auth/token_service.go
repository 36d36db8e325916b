package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/pkg/crypto"
	"github.com/charlesng35/burnnote/pkg/metrics"
)

const (
	// TokenTTL is the fixed lifetime of a bearer token. Tokens are not renewed on use.
	TokenTTL = 10 * time.Minute

	// tokenKeyBytes yields a 40 character URL-safe key.
	tokenKeyBytes = 30
)

var (
	// ErrTokenNotFound indicates the bearer does not match any stored token.
	ErrTokenNotFound = errors.New("token: not found")
	// ErrTokenExpired signals the stored token is past its expiry.
	ErrTokenExpired = errors.New("token: expired")
)

// IssuedToken is handed to the client after a successful code verification.
type IssuedToken struct {
	Token     string
	Key       string
	ExpiresAt time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenCodec wraps minted keys in signed JWTs.
func WithTokenCodec(codec *JWTService) TokenOption {
	return func(s *TokenService) {
		s.codec = codec
	}
}

// TokenService mints and validates short-lived bearer tokens.
type TokenService struct {
	db    *gorm.DB
	codec *JWTService
	now   func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(db *gorm.DB, opts ...TokenOption) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	svc := &TokenService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Mint persists a new token for userID with a fixed expiry.
func (s *TokenService) Mint(ctx context.Context, userID string) (*IssuedToken, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("token service: user id is required")
	}

	key, err := crypto.GenerateToken(tokenKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("token service: generate key: %w", err)
	}

	now := s.now()
	record := &models.SessionToken{
		UserID:    userID,
		Key:       key,
		ExpiresAt: now.Add(TokenTTL),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("token service: persist token: %w", err)
	}

	issued := &IssuedToken{Token: key, Key: key, ExpiresAt: record.ExpiresAt}
	if s.codec != nil {
		signed, err := s.codec.Sign(userID, key, now, record.ExpiresAt)
		if err != nil {
			return nil, err
		}
		issued.Token = signed
	}

	metrics.TokensMinted.Inc()
	return issued, nil
}

// Validate resolves a bearer string to the owning user id. Both raw keys and
// signed tokens are accepted.
func (s *TokenService) Validate(ctx context.Context, bearer string) (string, error) {
	key, err := s.resolveKey(bearer)
	if err != nil {
		return "", err
	}

	var record models.SessionToken
	err = s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("token service: load token: %w", err)
	}

	now := s.now()
	if record.IsExpired(now) {
		return "", ErrTokenExpired
	}

	if err := s.db.WithContext(ctx).
		Model(&models.SessionToken{}).
		Where("id = ?", record.ID).
		UpdateColumn("last_used_at", now).Error; err != nil {
		return "", fmt.Errorf("token service: touch token: %w", err)
	}

	return record.UserID, nil
}

func (s *TokenService) resolveKey(bearer string) (string, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return "", ErrTokenNotFound
	}
	if !LooksLikeJWT(bearer) {
		return bearer, nil
	}
	if s.codec == nil {
		return "", ErrTokenNotFound
	}
	claims, err := s.codec.Parse(bearer)
	if err != nil {
		return "", ErrTokenNotFound
	}
	return claims.ID, nil
}

// Revoke deletes every token belonging to userID.
func (s *TokenService) Revoke(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.SessionToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: revoke tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupExpired removes tokens whose expiry has passed.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.SessionToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: cleanup expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

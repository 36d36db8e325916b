package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/pkg/crypto"
	apperrors "github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/validator"
)

// DefaultInactiveUserAge is how long an account may go without logging in
// before the inactivity sweep removes it.
const DefaultInactiveUserAge = 30 * 24 * time.Hour

// RegisterInput describes an explicit registration. Password is optional
// since login is code based.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
}

// UserService manages accounts.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
	now          func() time.Time
}

// UserOption customises a UserService.
type UserOption func(*UserService)

// WithUserClock overrides the time source.
func WithUserClock(now func() time.Time) UserOption {
	return func(s *UserService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	svc := &UserService{
		db:           db,
		auditService: auditService,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user, hashing the password when one is supplied.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	input.Email = NormalizeEmail(input.Email)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	user := &models.User{Email: input.Email, IsActive: true}
	if input.Password != "" {
		hashed, err := crypto.HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		user.Password = hashed
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateEmail(err) {
			return nil, &apperrors.AppError{
				Code:       apperrors.ErrConflict.Code,
				Message:    "Email already registered",
				StatusCode: apperrors.ErrConflict.StatusCode,
			}
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	s.auditService.Record(ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   AuditAuthRegister,
		Resource: "user:" + user.ID,
		Result:   models.AuditResultSuccess,
	})
	return user, nil
}

// FindByEmail returns the user with the given address or ErrUserNotFound.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", NormalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find by email: %w", err)
	}
	return &user, nil
}

// FindByID returns the user with the given id or ErrUserNotFound.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find by id: %w", err)
	}
	return &user, nil
}

// EnsureUser returns the account for email, creating it when absent. The
// boolean reports whether the account was created by this call.
func (s *UserService) EnsureUser(ctx context.Context, email string) (*models.User, bool, error) {
	ctx = ensureContext(ctx)

	email = NormalizeEmail(email)
	if err := validator.ValidateStruct(RegisterInput{Email: email}); err != nil {
		return nil, false, apperrors.ErrAccountCreation.WithInternal(err)
	}

	user, err := s.FindByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, false, err
	}

	user = &models.User{Email: email, IsActive: true}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateEmail(err) {
			// lost a concurrent first login for the same address
			existing, findErr := s.FindByEmail(ctx, email)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, apperrors.ErrAccountCreation.WithInternal(err)
	}
	return user, true, nil
}

// RecordLogin stamps last_login_at with the current time.
func (s *UserService) RecordLogin(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("user service: record login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// CleanupInactive deletes non-admin accounts whose last login is older than
// inactiveFor, along with their secrets, codes and tokens. Accounts that never
// completed a login are left alone.
func (s *UserService) CleanupInactive(ctx context.Context, inactiveFor time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	if inactiveFor <= 0 {
		inactiveFor = DefaultInactiveUserAge
	}
	cutoff := s.now().Add(-inactiveFor)

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.User{}).
			Where("is_admin = ? AND last_login_at IS NOT NULL AND last_login_at < ?", false, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		for _, model := range []any{&models.SessionToken{}, &models.OneTimeCode{}, &models.Secret{}} {
			if err := tx.Where("user_id IN ?", ids).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Where("id IN ?", ids).Delete(&models.User{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("user service: cleanup inactive: %w", err)
	}

	if deleted > 0 {
		s.auditService.Record(ctx, AuditEntry{
			Action:   AuditUserInactivity,
			Resource: "user",
			Result:   models.AuditResultSuccess,
			Metadata: map[string]any{"deleted": deleted, "cutoff": cutoff.Format(time.RFC3339)},
		})
	}
	return deleted, nil
}

// isDuplicateEmail reports whether a users insert hit the unique email index.
// Only uniqueness violations match; a failing foreign key must not read as a
// taken address.
func isDuplicateEmail(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	// sqlite reports "UNIQUE constraint failed: users.email"
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/services"
	apperrors "github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/logger"
	"github.com/charlesng35/burnnote/pkg/mail"
	"github.com/charlesng35/burnnote/pkg/metrics"
)

// LoginResult reports the outcome of a login request. DebugCode is only set
// when delivery failed and the gateway runs in debug mode.
type LoginResult struct {
	ChallengeSent bool
	IsNewUser     bool
	DebugCode     string
}

// GatewayConfig wires the collaborators of a Gateway.
type GatewayConfig struct {
	Users  *services.UserService
	OTP    *OTPService
	Tokens *TokenService
	Mailer mail.Mailer
	Audit  *services.AuditService
	Debug  bool
}

// Gateway drives the email code login flow and bearer authentication.
type Gateway struct {
	users  *services.UserService
	otp    *OTPService
	tokens *TokenService
	mailer mail.Mailer
	audit  *services.AuditService
	debug  bool
	log    *zap.Logger
}

// NewGateway validates cfg and returns a Gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Users == nil || cfg.OTP == nil || cfg.Tokens == nil {
		return nil, errors.New("auth gateway: users, otp and token services are required")
	}
	return &Gateway{
		users:  cfg.Users,
		otp:    cfg.OTP,
		tokens: cfg.Tokens,
		mailer: cfg.Mailer,
		audit:  cfg.Audit,
		debug:  cfg.Debug,
		log:    logger.WithModule("auth"),
	}, nil
}

// Register creates an account explicitly.
func (g *Gateway) Register(ctx context.Context, input services.RegisterInput) (*models.User, error) {
	return g.users.Register(ctx, input)
}

// Login provisions the account when needed and emails a fresh login code.
func (g *Gateway) Login(ctx context.Context, email string) (*LoginResult, error) {
	user, created, err := g.users.EnsureUser(ctx, email)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, err
	}

	if err := g.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	code, err := g.otp.Issue(ctx, user.ID)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, err
	}

	result := &LoginResult{ChallengeSent: true, IsNewUser: created}
	if err := g.deliver(ctx, user.Email, code); err != nil {
		if !g.debug {
			metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
			g.record(ctx, user.ID, services.AuditAuthLogin, models.AuditResultFailure, map[string]any{"reason": "delivery"})
			return nil, apperrors.ErrOTPDelivery.WithInternal(err)
		}
		g.log.Warn("login code delivery failed; returning code in debug mode",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		result.ChallengeSent = false
		result.DebugCode = code
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	g.record(ctx, user.ID, services.AuditAuthLogin, models.AuditResultSuccess, map[string]any{"new_user": created})
	return result, nil
}

func (g *Gateway) deliver(ctx context.Context, to, code string) error {
	if g.mailer == nil {
		return mail.ErrSMTPDisabled
	}
	return g.mailer.Send(ctx, mail.LoginCodeMessage(to, code, OTPTTL))
}

// VerifyOTP exchanges a login code for a bearer token.
func (g *Gateway) VerifyOTP(ctx context.Context, email, code string) (*IssuedToken, error) {
	user, err := g.users.FindByEmail(ctx, email)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("otp", "failure").Inc()
		return nil, err
	}

	if err := g.otp.Verify(ctx, user.ID, code); err != nil {
		metrics.AuthAttempts.WithLabelValues("otp", "failure").Inc()
		if errors.Is(err, ErrOTPNotFound) || errors.Is(err, ErrOTPExpired) {
			g.record(ctx, user.ID, services.AuditAuthVerifyOTP, models.AuditResultFailure, map[string]any{"reason": err.Error()})
			return nil, apperrors.ErrInvalidOrExpiredOTP.WithInternal(err)
		}
		return nil, err
	}

	if err := g.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	issued, err := g.tokens.Mint(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth gateway: mint token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("otp", "success").Inc()
	g.record(ctx, user.ID, services.AuditAuthVerifyOTP, models.AuditResultSuccess, nil)
	return issued, nil
}

// Authenticate resolves a bearer string to a user id.
func (g *Gateway) Authenticate(ctx context.Context, bearer string) (string, error) {
	userID, err := g.tokens.Validate(ctx, bearer)
	switch {
	case err == nil:
		metrics.AuthAttempts.WithLabelValues("token", "success").Inc()
		return userID, nil
	case errors.Is(err, ErrTokenExpired):
		metrics.AuthAttempts.WithLabelValues("token", "expired").Inc()
		return "", apperrors.ErrTokenExpired
	case errors.Is(err, ErrTokenNotFound):
		metrics.AuthAttempts.WithLabelValues("token", "failure").Inc()
		return "", apperrors.ErrTokenNotFound
	default:
		return "", err
	}
}

// Logout revokes every token the user holds.
func (g *Gateway) Logout(ctx context.Context, userID string) error {
	revoked, err := g.tokens.Revoke(ctx, userID)
	if err != nil {
		return err
	}
	g.record(ctx, userID, services.AuditAuthLogout, models.AuditResultSuccess, map[string]any{"revoked": revoked})
	return nil
}

// CurrentUser loads the account behind an authenticated request.
func (g *Gateway) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return g.users.FindByID(ctx, userID)
}

func (g *Gateway) record(ctx context.Context, userID, action, result string, metadata map[string]any) {
	id := userID
	g.audit.Record(ctx, services.AuditEntry{
		UserID:   &id,
		Action:   action,
		Resource: "user:" + userID,
		Result:   result,
		Metadata: metadata,
	})
}

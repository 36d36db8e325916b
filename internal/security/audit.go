package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/app"
	iauth "github.com/charlesng35/burnnote/internal/auth"
	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/vault"
	"github.com/charlesng35/burnnote/pkg/crypto"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService reviews the deployment configuration at start-up.
type AuditService struct {
	db        *gorm.DB
	jwt       *iauth.JWTService
	cfg       *app.Config
	masterKey *vault.MasterKey
	now       func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are optional; missing
// inputs degrade specific checks to warnings.
func NewAuditService(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		jwt: jwt,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMasterKey lets the vault check report how the wrapping key was derived.
func (s *AuditService) WithMasterKey(key *vault.MasterKey) *AuditService {
	s.masterKey = key
	return s
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkJWTSecret(),
		s.checkVaultKey(),
		s.checkDebugMode(),
		s.checkMailDelivery(),
		s.checkRateLimit(),
		s.checkCORS(),
		s.checkOwnerlessSecrets(ctx),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

const (
	checkJWTSecret   = "jwt_secret_strength"
	checkVaultKey    = "vault_master_key"
	checkDebugMode   = "debug_mode"
	checkSMTP        = "smtp_delivery"
	checkRateLimit   = "rate_limit"
	checkCORS        = "cors_origins"
	checkOwnership   = "secret_ownership"
	minJWTSecretLen  = 32
	goodJWTSecretLen = 48
)

func pass(id, message string) Check {
	return Check{ID: id, Status: StatusPass, Message: message}
}

func warn(id, message, remediation string) Check {
	return Check{ID: id, Status: StatusWarn, Message: message, Remediation: remediation}
}

func fail(id, message, remediation string) Check {
	return Check{ID: id, Status: StatusFail, Message: message, Remediation: remediation}
}

func (c Check) with(details map[string]any) Check {
	c.Details = details
	return c
}

func (s *AuditService) checkJWTSecret() Check {
	if s.jwt == nil {
		return warn(checkJWTSecret, "JWT service not initialised; unable to assess signing secret strength.",
			"Initialise the JWT service with a strong secret.")
	}

	n := s.jwt.SecretLength()
	details := map[string]any{"length": n}
	switch {
	case n == 0:
		return fail(checkJWTSecret, "Missing JWT signing secret.",
			"Leave auth.jwt.secret empty to have one generated, or provide at least 32 random bytes.")
	case n < minJWTSecretLen:
		return fail(checkJWTSecret, fmt.Sprintf("JWT signing secret is too short (%d bytes).", n),
			"Use a randomly generated secret of at least 32 bytes.").with(details)
	case n < goodJWTSecretLen:
		return warn(checkJWTSecret, fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", n),
			"Increase the length of BURNNOTE_AUTH_JWT_SECRET to at least 48 bytes.").with(details)
	}
	return pass(checkJWTSecret, fmt.Sprintf("JWT signing secret length is %d bytes.", n)).with(details)
}

func (s *AuditService) checkVaultKey() Check {
	if s.cfg == nil {
		return configMissing(checkVaultKey)
	}

	raw, err := app.DecodeMasterKey(s.cfg.Vault.EncryptionKey)
	if err != nil {
		return fail(checkVaultKey, err.Error(),
			"Set BURNNOTE_VAULT_ENCRYPTION_KEY to 32 random bytes (64 hex characters).")
	}

	details := map[string]any{"length": len(raw)}
	var derived, floor crypto.Argon2Parameters
	if s.masterKey != nil {
		derived, floor = s.masterKey.Parameters(), crypto.DefaultArgon2Params()
		details["argon2"] = map[string]any{
			"time":    derived.Time,
			"memory":  derived.Memory,
			"threads": derived.Threads,
		}
	}

	switch {
	case len(raw) < 32:
		return warn(checkVaultKey, fmt.Sprintf("Vault master key is %d bytes; 32 are recommended.", len(raw)),
			"Rotate to a 32 byte key before storing secrets you cannot afford to lose.").with(details)
	case s.masterKey != nil && (derived.Time < floor.Time || derived.Memory < floor.Memory):
		return warn(checkVaultKey,
			fmt.Sprintf("Master key derived with Argon2id t=%d m=%dKiB, below t=%d m=%dKiB.",
				derived.Time, derived.Memory, floor.Time, floor.Memory),
			"Derive the master key with the default Argon2id parameters.").with(details)
	}
	return pass(checkVaultKey, "Vault master key configured.").with(details)
}

func (s *AuditService) checkDebugMode() Check {
	if s.cfg == nil {
		return configMissing(checkDebugMode)
	}
	if s.cfg.Server.Debug {
		return warn(checkDebugMode, "Debug mode is on; login codes are returned in API responses when mail delivery fails.",
			"Set server.debug to false outside local development.")
	}
	return pass(checkDebugMode, "Debug mode is off.")
}

func (s *AuditService) checkMailDelivery() Check {
	if s.cfg == nil {
		return configMissing(checkSMTP)
	}
	smtp := s.cfg.Email.SMTP
	switch {
	case !smtp.Enabled && !s.cfg.Server.Debug:
		return fail(checkSMTP, "SMTP is disabled; nobody can receive a login code.",
			"Configure email.smtp so login codes can be delivered.")
	case !smtp.Enabled:
		return warn(checkSMTP, "SMTP is disabled; login codes are only available through debug responses.", "")
	case !smtp.UseTLS:
		return warn(checkSMTP, "SMTP delivery does not require TLS; login codes may cross the network in clear text.",
			"Enable email.smtp.use_tls.")
	}
	return pass(checkSMTP, "SMTP delivery configured with TLS.")
}

func (s *AuditService) checkRateLimit() Check {
	if s.cfg == nil {
		return configMissing(checkRateLimit)
	}
	limits := s.cfg.RateLimit
	if !limits.Enabled || limits.Sensitive <= 0 {
		return warn(checkRateLimit, "Login, code verification and secret views are not rate limited.",
			"Enable rate_limit with a small sensitive limit to slow down code and passphrase guessing.")
	}
	return pass(checkRateLimit, fmt.Sprintf("Sensitive endpoints limited to %d requests per %s.",
		limits.Sensitive, limits.WindowOrDefault()))
}

func (s *AuditService) checkCORS() Check {
	if s.cfg == nil {
		return configMissing(checkCORS)
	}
	for _, origin := range s.cfg.Server.CORSOrigins {
		if strings.TrimSpace(origin) == "*" {
			return warn(checkCORS, "Any origin may call the API.",
				"List the front-end origins explicitly in server.cors_origins.")
		}
	}
	return pass(checkCORS, "CORS origins restricted.")
}

// checkOwnerlessSecrets looks for live secrets whose owner no longer exists,
// which only happens when foreign keys are not enforced.
func (s *AuditService) checkOwnerlessSecrets(ctx context.Context) Check {
	if s.db == nil {
		return warn(checkOwnership, "Database unavailable; unable to verify secret ownership.",
			"Ensure database connectivity before running the audit.")
	}

	var orphans int64
	err := s.db.WithContext(ctx).
		Model(&models.Secret{}).
		Where("user_id NOT IN (?)", s.db.Model(&models.User{}).Select("id")).
		Count(&orphans).Error
	switch {
	case err != nil:
		return warn(checkOwnership, fmt.Sprintf("Could not verify secret ownership: %v", err),
			"Retry after resolving database errors.")
	case orphans > 0:
		return fail(checkOwnership, fmt.Sprintf("%d secrets reference deleted users.", orphans),
			"Enable foreign key enforcement on the database.").with(map[string]any{"count": orphans})
	}
	return pass(checkOwnership, "Every secret has an owner.")
}

func configMissing(id string) Check {
	return warn(id, "Configuration not loaded; unable to evaluate.",
		"Load configuration before running the security audit.")
}

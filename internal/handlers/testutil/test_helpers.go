package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/api"
	"github.com/charlesng35/burnnote/internal/app"
	iauth "github.com/charlesng35/burnnote/internal/auth"
	sharedtestutil "github.com/charlesng35/burnnote/internal/database/testutil"
	"github.com/charlesng35/burnnote/internal/middleware"
	"github.com/charlesng35/burnnote/internal/monitoring"
	"github.com/charlesng35/burnnote/internal/monitoring/checks"
	"github.com/charlesng35/burnnote/internal/services"
	"github.com/charlesng35/burnnote/internal/vault"
	"github.com/charlesng35/burnnote/pkg/crypto"
	"github.com/charlesng35/burnnote/pkg/mail"
	"github.com/charlesng35/burnnote/pkg/response"
)

var loginCodePattern = regexp.MustCompile(`Your login code is: ([0-9]{6})`)

// Mailbox records outbound mail instead of delivering it. Setting Err makes
// every delivery fail.
type Mailbox struct {
	mu   sync.Mutex
	sent []mail.Message
	Err  error
}

// Send implements mail.Mailer.
func (m *Mailbox) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Count returns the number of delivered messages.
func (m *Mailbox) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// LastCode extracts the login code from the most recent message.
func (m *Mailbox) LastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no login code was mailed")
	matches := loginCodePattern.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	require.Len(t, matches, 2)
	return matches[1]
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Config  *app.Config
	Mailbox *Mailbox
	Secrets *services.SecretService
	Tokens  *iauth.TokenService
	Jobs    *monitoring.JobTracker
}

// Option customises the environment before the router is built.
type Option func(*app.Config)

// WithDebug runs the auth gateway in debug mode, echoing codes when mail fails.
func WithDebug() Option {
	return func(cfg *app.Config) { cfg.Server.Debug = true }
}

// WithSensitiveLimit caps login, verification and view requests per window.
func WithSensitiveLimit(limit int) Option {
	return func(cfg *app.Config) { cfg.RateLimit.Sensitive = limit }
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: "test-suite-super-secret-key-32-bytes!!", Issuer: "test-suite"},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		RateLimit: app.RateLimitConfig{Enabled: true, Global: 1000, Sensitive: 100, Window: time.Minute},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit)
	require.NoError(t, err)

	gate, err := vault.NewPassphraseGate(crypto.Argon2Parameters{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32})
	require.NoError(t, err)
	box := vault.NewBox(nil)
	secrets, err := services.NewSecretService(db, box, audit, services.WithPassphraseGate(gate))
	require.NoError(t, err)

	codec, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	tokens, err := iauth.NewTokenService(db, iauth.WithTokenCodec(codec))
	require.NoError(t, err)
	otp, err := iauth.NewOTPService(db)
	require.NoError(t, err)

	mailbox := &Mailbox{}
	gateway, err := iauth.NewGateway(iauth.GatewayConfig{
		Users:  users,
		OTP:    otp,
		Tokens: tokens,
		Mailer: mailbox,
		Audit:  audit,
		Debug:  cfg.Server.Debug,
	})
	require.NoError(t, err)

	jobs := monitoring.NewJobTracker()
	health := monitoring.NewHealthManager()
	health.Register(checks.Database(db), monitoring.Liveness|monitoring.Readiness)
	health.Register(checks.Vault(box, db), monitoring.Readiness)
	health.Register(checks.Maintenance(jobs, 0), monitoring.Readiness)

	router, err := api.NewRouter(cfg, api.Dependencies{
		Gateway:   gateway,
		Secrets:   secrets,
		Audit:     audit,
		Health:    health,
		Jobs:      jobs,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Config:  cfg,
		Mailbox: mailbox,
		Secrets: secrets,
		Tokens:  tokens,
		Jobs:    jobs,
	}
}

// LoginAs runs the email code flow for email and returns the bearer token.
func (e *Env) LoginAs(email string) string {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{"email": email}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	code := e.Mailbox.LastCode(e.T)
	w = e.Request(http.MethodPost, "/api/auth/verify-otp", map[string]string{"email": email, "code": code}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var token TokenPayload
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &token)
	require.NotEmpty(e.T, token.Token)
	return token.Token
}

// TokenPayload mirrors the verify-otp response.
type TokenPayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SecretPayload captures the metadata returned by the secret endpoints.
type SecretPayload struct {
	ID                   string     `json:"id"`
	CreatedAt            time.Time  `json:"created_at"`
	ExpiresAt            time.Time  `json:"expires_at"`
	HasPassphrase        bool       `json:"has_passphrase"`
	DestructionAnimation string     `json:"destruction_animation"`
	State                string     `json:"state"`
	Expired              bool       `json:"expired"`
	ViewedAt             *time.Time `json:"viewed_at"`
	DestroyedAt          *time.Time `json:"destroyed_at"`
}

// ViewPayload mirrors a successful view response.
type ViewPayload struct {
	Message  string        `json:"message"`
	Metadata SecretPayload `json:"metadata"`
}

// CreateSecret stores a secret through the API and returns its metadata.
func (e *Env) CreateSecret(token string, body map[string]any) SecretPayload {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/secrets", body, token)
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	var secret SecretPayload
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &secret)
	require.NotEmpty(e.T, secret.ID)
	return secret
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RequireError asserts the status and error code of a failed request.
func RequireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, code, resp.Error.Code)
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	req.RemoteAddr = "192.0.2.10:4321"

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

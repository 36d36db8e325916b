package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable code and the HTTP status it renders as.
// Internal is logged but never shown to the client.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of e carrying err as its cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	out := *e
	out.Internal = err
	return &out
}

// Is matches any AppError with the same code, so sentinels survive
// WithInternal copies.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// NewBadRequest reports an invalid request with a caller-facing message.
func NewBadRequest(message string) *AppError {
	return New(ErrBadRequest.Code, message, ErrBadRequest.StatusCode)
}

// FromError returns the AppError in err's chain, or ErrInternalServer
// wrapping err when there is none.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

var (
	ErrUnauthorized   = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound       = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest     = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrConflict       = New("CONFLICT", "Resource already exists", http.StatusConflict)
	ErrInternalServer = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrRateLimit      = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
)

// Secret lifecycle.
var (
	ErrSecretNotFound     = New("secret.not_found", "Secret not found", http.StatusNotFound)
	ErrSecretConsumed     = New("secret.consumed", "This secret has already been viewed or destroyed", http.StatusGone)
	ErrSecretExpired      = New("secret.expired", "This secret has expired", http.StatusGone)
	ErrPassphraseRequired = New("secret.passphrase_required", "A passphrase is required to view this secret", http.StatusUnauthorized)
	ErrInvalidPassphrase  = New("secret.passphrase_invalid", "Invalid passphrase", http.StatusUnauthorized)
	// the message matches ErrInternalServer so clients cannot tell a broken key apart
	ErrSecretCorrupt    = New("secret.unreadable", "Internal server error", http.StatusInternalServerError)
	ErrSecretForbidden  = New("secret.forbidden", "Only the owner can destroy this secret", http.StatusForbidden)
	ErrEmptyMessage     = New("secret.empty_message", "Message must not be empty", http.StatusBadRequest)
	ErrInvalidTTL       = New("secret.invalid_ttl", "Expiry must be between 1 minute and 7 days", http.StatusBadRequest)
	ErrInvalidAnimation = New("secret.invalid_animation", "Unknown destruction animation", http.StatusBadRequest)
)

// Authentication.
var (
	ErrTokenNotFound       = New("auth.token_invalid", "Invalid token", http.StatusUnauthorized)
	ErrTokenExpired        = New("auth.token_expired", "Token has expired", http.StatusUnauthorized)
	ErrInvalidOrExpiredOTP = New("auth.otp_invalid", "Invalid or expired code", http.StatusUnauthorized)
	ErrUserNotFound        = New("auth.user_not_found", "User not found", http.StatusNotFound)
	ErrAccountCreation     = New("auth.account_creation_failed", "Could not create account", http.StatusBadRequest)
	ErrOTPDelivery         = New("auth.otp_delivery_failed", "Could not deliver login code", http.StatusBadGateway)
)

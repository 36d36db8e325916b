package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/burnnote/internal/auth"
	"github.com/charlesng35/burnnote/internal/middleware"
	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/services"
	"github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/response"
)

// AuthHandler manages the email code flow (register/login/verify-otp/logout/me).
type AuthHandler struct {
	gateway *iauth.Gateway
}

func NewAuthHandler(gateway *iauth.Gateway) *AuthHandler {
	return &AuthHandler{gateway: gateway}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"omitempty,min=8,max=128"`
}

type loginRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,otpcode"`
}

type loginResponse struct {
	ChallengeSent bool   `json:"challenge_sent"`
	IsNewUser     bool   `json:"is_new_user"`
	DebugOTP      string `json:"debug_otp,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"is_admin"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		IsAdmin:     user.IsAdmin,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.gateway.Register(requestContext(c), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, toUserResponse(user))
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.gateway.Login(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, loginResponse{
		ChallengeSent: result.ChallengeSent,
		IsNewUser:     result.IsNewUser,
		DebugOTP:      result.DebugCode,
	})
}

// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issued, err := h.gateway.VerifyOTP(requestContext(c), req.Email, strings.TrimSpace(req.Code))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.gateway.Logout(requestContext(c), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.gateway.CurrentUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toUserResponse(user))
}

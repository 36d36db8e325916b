package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/charlesng35/burnnote/internal/middleware"
	"github.com/charlesng35/burnnote/internal/services"
	"github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/response"
)

// SecretHandler exposes the secret lifecycle. View and metadata lookups are
// mounted on the public group; everything else requires a bearer token.
type SecretHandler struct {
	secrets *services.SecretService
}

// NewSecretHandler constructs a handler for the secret service.
func NewSecretHandler(secrets *services.SecretService) *SecretHandler {
	return &SecretHandler{secrets: secrets}
}

type createSecretRequest struct {
	Message              string `json:"message"`
	Passphrase           string `json:"passphrase" validate:"omitempty,max=256"`
	TTLMinutes           *int   `json:"ttl_minutes"`
	DestructionAnimation string `json:"destruction_animation"`
}

type viewSecretRequest struct {
	Passphrase string `json:"passphrase" validate:"omitempty,max=256"`
}

// Create seals a new secret for the authenticated user.
func (h *SecretHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	// message, ttl and animation are checked by the service so that each
	// failure keeps its own error code
	var req createSecretRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateSecretInput{
		OwnerID:    userID,
		Message:    req.Message,
		Passphrase: req.Passphrase,
		Animation:  strings.TrimSpace(req.DestructionAnimation),
	}
	if req.TTLMinutes != nil {
		// bounded before the multiplication so large values cannot wrap
		if *req.TTLMinutes <= 0 || *req.TTLMinutes > int(services.MaxSecretTTL/time.Minute) {
			response.Error(c, errors.ErrInvalidTTL)
			return
		}
		input.TTL = time.Duration(*req.TTLMinutes) * time.Minute
	}

	meta, err := h.secrets.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, meta)
}

// List returns metadata for every secret the authenticated user created.
func (h *SecretHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	secrets, err := h.secrets.ListByOwner(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, secrets, &response.Meta{Total: len(secrets)})
}

// Get returns public metadata without consuming the secret.
func (h *SecretHandler) Get(c *gin.Context) {
	id, ok := secretIDParam(c)
	if !ok {
		return
	}

	meta, err := h.secrets.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, meta.Public())
}

// View reveals the message once. Any later request receives secret.consumed.
func (h *SecretHandler) View(c *gin.Context) {
	id, ok := secretIDParam(c)
	if !ok {
		return
	}

	// an absent body means no passphrase
	var req viewSecretRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.secrets.AttemptView(requestContext(c), id, req.Passphrase)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Destroy burns a live secret on behalf of its owner.
func (h *SecretHandler) Destroy(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := secretIDParam(c)
	if !ok {
		return
	}

	if err := h.secrets.Destroy(requestContext(c), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id, "destroyed": true})
}

// secretIDParam rejects ids that are not UUIDs with the same not-found error
// an unknown id produces.
func secretIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, errors.ErrSecretNotFound)
		return "", false
	}
	return id, true
}

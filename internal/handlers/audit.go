package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/burnnote/internal/middleware"
	"github.com/charlesng35/burnnote/internal/services"
	"github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/auth/activity
func (h *AuditHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	logs, err := h.svc.ListForUser(requestContext(c), userID, limit)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Total: len(logs)})
}

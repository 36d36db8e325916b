package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/burnnote/internal/monitoring"
)

// HealthHandler reports check results and maintenance job state.
type HealthHandler struct {
	manager *monitoring.HealthManager
	jobs    *monitoring.JobTracker
}

// NewHealthHandler returns a handler. A nil manager reports healthy with no checks.
func NewHealthHandler(manager *monitoring.HealthManager, jobs *monitoring.JobTracker) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager, jobs: jobs}
}

// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	report := h.manager.Evaluate(requestContext(c), monitoring.Liveness|monitoring.Readiness)
	c.JSON(statusFor(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": time.Now().UTC(),
	})
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	h.write(c, h.manager.Evaluate(requestContext(c), monitoring.Liveness), false)
}

// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	h.write(c, h.manager.Evaluate(requestContext(c), monitoring.Readiness), true)
}

func (h *HealthHandler) write(c *gin.Context, report monitoring.HealthReport, withJobs bool) {
	payload := gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	}
	if withJobs && h.jobs != nil {
		payload["jobs"] = h.jobs.Snapshot()
	}
	c.JSON(statusFor(report), payload)
}

func statusFor(report monitoring.HealthReport) int {
	if !report.Success {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

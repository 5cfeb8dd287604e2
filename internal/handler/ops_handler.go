package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/spokeshare/service-booking/internal/application"
	"github.com/spokeshare/service-booking/internal/middleware"
	"github.com/spokeshare/service-booking/internal/response"
)

// OpsHandler exposes internal operational endpoints guarded by a shared
// secret header rather than user authentication.
type OpsHandler struct {
	service       *application.BookingService
	sweepPageSize int
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(service *application.BookingService, sweepPageSize int) *OpsHandler {
	return &OpsHandler{service: service, sweepPageSize: sweepPageSize}
}

// RegisterRoutes registers the operational routes on the given router group.
func (h *OpsHandler) RegisterRoutes(r *gin.RouterGroup, opsSecret string) {
	ops := r.Group("/api/v1/ops")
	ops.Use(middleware.RequireOpsSecret(opsSecret))
	{
		ops.POST("/sweep-acceptance", h.SweepAcceptance)
	}
}

// SweepAcceptance handles POST /api/v1/ops/sweep-acceptance.
func (h *OpsHandler) SweepAcceptance(c *gin.Context) {
	limit := h.sweepPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.service.SweepExpiredAcceptances(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/spokeshare/service-booking/internal/application"
	"github.com/spokeshare/service-booking/internal/auth"
	"github.com/spokeshare/service-booking/internal/middleware"
	"github.com/spokeshare/service-booking/internal/response"
)

// AdminHandler handles administrator-only booking operations. Routes require
// the admin role and the caller's identity must match the single configured
// administrator.
type AdminHandler struct {
	service *application.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *application.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes registers all admin routes on the given router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager, adminUserID string) {
	admin := r.Group("/api/v1/admin")
	admin.Use(
		middleware.AuthMiddleware(jwtManager),
		middleware.RequireRole(auth.RoleAdmin),
		middleware.RequireAdminIdentity(adminUserID),
	)
	{
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/bookings/review-queue", h.ListReviewQueue)
		admin.GET("/bookings/stats", h.Stats)
		admin.POST("/bookings/:id/resolve", h.Resolve)
		admin.POST("/bookings/:id/no-show-resolution", h.ResolveNoShowClaim)
	}
}

// ListBookings handles GET /api/v1/admin/bookings.
func (h *AdminHandler) ListBookings(c *gin.Context) {
	page, limit := parsePagination(c)

	result, err := h.service.ListAllBookings(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// ListReviewQueue handles GET /api/v1/admin/bookings/review-queue.
func (h *AdminHandler) ListReviewQueue(c *gin.Context) {
	page, limit := parsePagination(c)

	result, err := h.service.ListReviewQueue(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// Stats handles GET /api/v1/admin/bookings/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// Resolve handles POST /api/v1/admin/bookings/:id/resolve.
func (h *AdminHandler) Resolve(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	adminID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var body struct {
		Decision string `json:"decision" binding:"required"`
		Note     string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Resolve(c.Request.Context(), bookingID, adminID, body.Decision, body.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ResolveNoShowClaim handles POST /api/v1/admin/bookings/:id/no-show-resolution.
func (h *AdminHandler) ResolveNoShowClaim(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	adminID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var body struct {
		Decision string `json:"decision" binding:"required"`
		Note     string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ResolveNoShowClaim(c.Request.Context(), bookingID, adminID, body.Decision, body.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/veloevents/service-booking-flow/internal/application"
	"github.com/veloevents/service-booking-flow/internal/auth"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
	"github.com/veloevents/service-booking-flow/internal/middleware"
	"github.com/veloevents/service-booking-flow/internal/response"
)

// PartnerHandler handles partner resolution and the admin partner listing.
type PartnerHandler struct {
	service *application.PartnerService
}

// NewPartnerHandler creates a new PartnerHandler.
func NewPartnerHandler(service *application.PartnerService) *PartnerHandler {
	return &PartnerHandler{service: service}
}

// RegisterRoutes registers partner routes.
func (h *PartnerHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	partners := r.Group("/partners")
	partners.Use(middleware.OptionalAuthMiddleware(jwtManager))
	{
		partners.POST("/resolve", h.Resolve)
	}

	admin := r.Group("/admin/partners")
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleAdmin))
	{
		admin.GET("", h.List)
	}
}

// ResolveRequest is the partner resolution payload.
type ResolveRequest struct {
	Code          string `json:"code"`
	AdminOverride string `json:"admin_override"`
}

// Resolve handles POST /api/v1/partners/resolve. Admin override input is
// only honored for authenticated admins; everyone else resolves through
// their own account or the posted code.
func (h *PartnerHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID, _ := middleware.GetUserID(c)
	ctx, err := h.service.Resolve(c.Request.Context(), partner.Input{
		AdminOverride: req.AdminOverride,
		IsAdmin:       middleware.IsAdmin(c),
		UserID:        userID,
		PostedCode:    req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ctx)
}

// List handles GET /api/v1/admin/partners.
func (h *PartnerHandler) List(c *gin.Context) {
	partners, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, partners)
}

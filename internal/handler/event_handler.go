package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veloevents/service-booking-flow/internal/application"
	"github.com/veloevents/service-booking-flow/internal/auth"
	"github.com/veloevents/service-booking-flow/internal/domain/event"
	"github.com/veloevents/service-booking-flow/internal/middleware"
	"github.com/veloevents/service-booking-flow/internal/response"
)

// EventHandler handles the public early-booking quote and the admin
// configuration surface.
type EventHandler struct {
	quotes  *application.QuoteService
	configs *application.EventConfigService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(quotes *application.QuoteService, configs *application.EventConfigService) *EventHandler {
	return &EventHandler{quotes: quotes, configs: configs}
}

// RegisterRoutes registers event routes.
func (h *EventHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	r.GET("/events/:id/early-booking", h.GetQuote)

	admin := r.Group("/admin/events")
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/:id/early-booking", h.GetConfig)
		admin.PUT("/:id/early-booking", h.UpdateConfig)
	}
}

// GetQuote handles GET /api/v1/events/:id/early-booking.
func (h *EventHandler) GetQuote(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || eventID <= 0 {
		response.BadRequest(c, "invalid event id")
		return
	}

	quote, err := h.quotes.EarlyBooking(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, quote)
}

// GetConfig handles GET /api/v1/admin/events/:id/early-booking.
func (h *EventHandler) GetConfig(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || eventID <= 0 {
		response.BadRequest(c, "invalid event id")
		return
	}

	cfg, err := h.configs.Get(c.Request.Context(), eventID)
	if err != nil {
		if err == event.ErrNotFound {
			response.NotFound(c, "event not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}

// UpdateConfigRequest is the admin configuration write payload.
type UpdateConfigRequest struct {
	Enabled              bool                `json:"enabled"`
	ParticipationEnabled bool                `json:"participation_enabled"`
	RentalEnabled        bool                `json:"rental_enabled"`
	Rules                event.RulesDocument `json:"rules"`
}

// UpdateConfig handles PUT /api/v1/admin/events/:id/early-booking.
func (h *EventHandler) UpdateConfig(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || eventID <= 0 {
		response.BadRequest(c, "invalid event id")
		return
	}

	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cfg, err := h.configs.Update(c.Request.Context(), application.EventConfig{
		EventID:              eventID,
		Enabled:              req.Enabled,
		ParticipationEnabled: req.ParticipationEnabled,
		RentalEnabled:        req.RentalEnabled,
		Rules:                req.Rules,
	})
	if err != nil {
		switch err {
		case event.ErrNotFound:
			response.NotFound(c, "event not found")
		case application.ErrInvalidRules:
			response.BadRequest(c, err.Error())
		default:
			response.Error(c, err)
		}
		return
	}
	response.Success(c, cfg)
}

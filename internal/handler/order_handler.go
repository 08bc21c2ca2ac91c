package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veloevents/service-booking-flow/internal/application"
	"github.com/veloevents/service-booking-flow/internal/auth"
	"github.com/veloevents/service-booking-flow/internal/domain/order"
	"github.com/veloevents/service-booking-flow/internal/middleware"
	"github.com/veloevents/service-booking-flow/internal/response"
)

// OrderHandler exposes the order ledger.
type OrderHandler struct {
	ledgers *application.LedgerService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(ledgers *application.LedgerService) *OrderHandler {
	return &OrderHandler{ledgers: ledgers}
}

// RegisterRoutes registers order routes. Reads require authentication;
// forcing a ledger write is admin-only.
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware(jwtManager))
	{
		orders.GET("/:id/ledger", h.GetLedger)
		orders.POST("/:id/ledger", middleware.RequireRole(auth.RoleAdmin), h.WriteLedger)
	}
}

// GetLedger handles GET /api/v1/orders/:id/ledger.
func (h *OrderHandler) GetLedger(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		response.BadRequest(c, "invalid order id")
		return
	}

	ledger, err := h.ledgers.Read(c.Request.Context(), orderID)
	if err != nil {
		if err == order.ErrNotFound {
			response.NotFound(c, "order not found")
			return
		}
		response.Error(c, err)
		return
	}
	if ledger == nil {
		response.NotFound(c, "no ledger written for this order")
		return
	}
	response.Success(c, ledger)
}

// WriteLedger handles POST /api/v1/orders/:id/ledger. Safe to call on an
// already-stamped order; the existing ledger comes back unchanged.
func (h *OrderHandler) WriteLedger(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		response.BadRequest(c, "invalid order id")
		return
	}

	ctx := c.Request.Context()
	if err := h.ledgers.PersistPartnerMeta(ctx, orderID); err != nil {
		if err == order.ErrNotFound {
			response.NotFound(c, "order not found")
			return
		}
		response.Error(c, err)
		return
	}

	ledger, err := h.ledgers.Write(ctx, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ledger == nil {
		response.BadRequest(c, "order has no priceable booking lines")
		return
	}
	response.Success(c, ledger)
}

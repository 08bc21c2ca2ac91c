package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veloevents/service-booking-flow/internal/application"
	"github.com/veloevents/service-booking-flow/internal/auth"
	"github.com/veloevents/service-booking-flow/internal/domain/form"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
	"github.com/veloevents/service-booking-flow/internal/middleware"
	"github.com/veloevents/service-booking-flow/internal/response"
)

// SubmissionHandler handles HTTP requests for booking submissions.
type SubmissionHandler struct {
	submissions *application.SubmissionService
	partners    *application.PartnerService
	entries     form.Repository
	fields      form.FieldMap
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(
	submissions *application.SubmissionService,
	partners *application.PartnerService,
	entries form.Repository,
	fields form.FieldMap,
) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		partners:    partners,
		entries:     entries,
		fields:      fields,
	}
}

// RegisterRoutes registers the submission routes. The surface is public;
// a valid token only enriches partner resolution.
func (h *SubmissionHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	submissions := r.Group("/submissions")
	submissions.Use(middleware.OptionalAuthMiddleware(jwtManager))
	{
		submissions.POST("/validate", h.Validate)
		submissions.POST("", h.Submit)
	}
}

// SubmitRequest is the submission payload. Values are keyed by form field
// id, mirroring the form engine's entry format.
type SubmitRequest struct {
	SessionID string            `json:"session_id" binding:"required"`
	FormID    int64             `json:"form_id"`
	EntryID   int64             `json:"entry_id"`
	Values    map[string]string `json:"values"`
}

// ValidateRequest carries the pre-submission check payload.
type ValidateRequest struct {
	Values map[string]string `json:"values" binding:"required"`
}

// Validate handles POST /api/v1/submissions/validate.
func (h *SubmissionHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entry := &form.Entry{Values: req.Values}
	ferr, err := h.submissions.Validate(c.Request.Context(), entry)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ferr != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   ferr.Message,
			"field":   ferr.FieldID,
		})
		return
	}
	// Values echo back so a self-healed total reaches the client.
	response.Success(c, gin.H{"valid": true, "values": entry.Values})
}

// Submit handles POST /api/v1/submissions. New entries are persisted first,
// then validated and turned into cart lines.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	var entry *form.Entry
	var err error
	if req.EntryID > 0 {
		entry, err = h.entries.FindByID(ctx, req.EntryID)
		if err != nil {
			if err == form.ErrNotFound {
				response.NotFound(c, "entry not found")
				return
			}
			response.Error(c, err)
			return
		}
	} else {
		if len(req.Values) == 0 {
			response.BadRequest(c, "either entry_id or values is required")
			return
		}
		entry = &form.Entry{FormID: req.FormID, Values: req.Values}
		ferr, err := h.submissions.Validate(ctx, entry)
		if err != nil {
			response.Error(c, err)
			return
		}
		if ferr != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   ferr.Message,
				"field":   ferr.FieldID,
			})
			return
		}
		if err := h.entries.Save(ctx, entry); err != nil {
			response.Error(c, err)
			return
		}
	}

	userID, _ := middleware.GetUserID(c)
	partnerCtx, err := h.partners.Resolve(ctx, partner.Input{
		AdminOverride: entry.Value(h.fields.AdminOverride),
		IsAdmin:       middleware.IsAdmin(c),
		UserID:        userID,
		PostedCode:    entry.Value(h.fields.CouponCode),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.submissions.Submit(ctx, application.SubmitParams{
		SessionID: req.SessionID,
		EntryID:   entry.ID,
		Partner:   partnerCtx,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.AlreadyAdded {
		response.Success(c, result)
		return
	}
	response.Created(c, gin.H{
		"result":  result,
		"partner": partnerCtx,
	})
}

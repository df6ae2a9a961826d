package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/middleware"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/service"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

type availabilityService interface {
	GetAvailability(ctx context.Context, openStudioSessionID string) (*dto.AvailabilityResponse, bool, error)
}

type waitlistService interface {
	Join(ctx context.Context, sessionID string, req dto.JoinWaitlistRequest) (*dto.JoinWaitlistResponse, error)
	Leave(ctx context.Context, entryID string) error
	Promote(ctx context.Context, sessionID, resourceID string) (*dto.PromotionResult, error)
}

// OpenStudioHandler exposes open-studio availability and waitlist endpoints.
type OpenStudioHandler struct {
	availability availabilityService
	waitlist     waitlistService
}

// NewOpenStudioHandler builds an open-studio handler.
func NewOpenStudioHandler(availability availabilityService, waitlist waitlistService) *OpenStudioHandler {
	return &OpenStudioHandler{availability: availability, waitlist: waitlist}
}

// Availability godoc
// @Summary Free capacity per resource for an open-studio session
// @Tags OpenStudio
// @Produce json
// @Param id path string true "Open-studio session ID"
// @Success 200 {object} response.Envelope
// @Router /open-studio/{id}/availability [get]
func (h *OpenStudioHandler) Availability(c *gin.Context) {
	result, cacheHit, err := h.availability.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// JoinWaitlist godoc
// @Summary Join the waitlist for a resource slot
// @Tags OpenStudio
// @Accept json
// @Produce json
// @Param id path string true "Open-studio session ID"
// @Param payload body dto.JoinWaitlistRequest true "Waitlist entry"
// @Success 201 {object} response.Envelope
// @Router /open-studio/{id}/waitlist [post]
func (h *OpenStudioHandler) JoinWaitlist(c *gin.Context) {
	var req dto.JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid waitlist payload"))
		return
	}
	if req.SubscriptionID == "" {
		if claims := middleware.Claims(c); claims != nil && claims.Role == models.RoleMember {
			req.SubscriptionID = claims.UserID
		}
	}
	result, err := h.waitlist.Join(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Promote godoc
// @Summary Promote the head of a resource waitlist into a booking
// @Tags OpenStudio
// @Produce json
// @Param id path string true "Open-studio session ID"
// @Param resourceId path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope "waitlist empty"
// @Failure 409 {object} response.Envelope "head does not fit"
// @Router /open-studio/{id}/waitlist/{resourceId}/promote [post]
func (h *OpenStudioHandler) Promote(c *gin.Context) {
	sessionID, resourceID := c.Param("id"), c.Param("resourceId")
	result, err := h.waitlist.Promote(c.Request.Context(), sessionID, resourceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	switch result.Reason {
	case service.PromotionEmpty:
		response.Error(c, appErrors.WithDetails(appErrors.ErrWaitlistEmpty, "", map[string]any{
			"sessionId":  sessionID,
			"resourceId": resourceID,
		}))
		return
	case service.PromotionBlocked:
		details := map[string]any{"sessionId": sessionID, "resourceId": resourceID}
		if result.Entry != nil {
			details["entryId"] = result.Entry.ID
			details["quantity"] = result.Entry.Quantity
		}
		response.Error(c, appErrors.WithDetails(appErrors.ErrInsufficientSpaces, "", details))
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// LeaveWaitlist godoc
// @Summary Leave a waitlist
// @Tags OpenStudio
// @Param entryId path string true "Waitlist entry ID"
// @Success 204
// @Router /waitlist/{entryId} [delete]
func (h *OpenStudioHandler) LeaveWaitlist(c *gin.Context) {
	if err := h.waitlist.Leave(c.Request.Context(), c.Param("entryId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

type reservationCanceller interface {
	CancelReservation(ctx context.Context, reservationID string) (*dto.CancelReservationResult, error)
}

// ReservationHandler exposes reservation lifecycle endpoints.
type ReservationHandler struct {
	service reservationCanceller
}

// NewReservationHandler builds a reservation handler.
func NewReservationHandler(service reservationCanceller) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Cancel godoc
// @Summary Cancel a class reservation
// @Description Releases the registration's allocations and promotes overlapping open-studio waitlists.
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	result, err := h.service.CancelReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

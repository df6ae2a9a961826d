package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

type patternService interface {
	Preview(req dto.ExpandPatternRequest) (*dto.ExpandPatternResponse, error)
	Occurrences(ctx context.Context, patternID string) (*dto.ExpandPatternResponse, error)
	Materialize(ctx context.Context, patternID string) (*dto.MaterializeResult, error)
}

// PatternHandler exposes schedule pattern expansion and materialization.
type PatternHandler struct {
	service patternService
}

// NewPatternHandler builds a pattern handler.
func NewPatternHandler(service patternService) *PatternHandler {
	return &PatternHandler{service: service}
}

// Expand godoc
// @Summary Preview the occurrences of a recurrence rule
// @Tags Patterns
// @Accept json
// @Produce json
// @Param payload body dto.ExpandPatternRequest true "Rule preview payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /patterns/expand [post]
func (h *PatternHandler) Expand(c *gin.Context) {
	var req dto.ExpandPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expand payload"))
		return
	}
	result, err := h.service.Preview(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Occurrences godoc
// @Summary List the occurrences of a stored pattern
// @Tags Patterns
// @Produce json
// @Param id path string true "Pattern ID"
// @Success 200 {object} response.Envelope
// @Router /patterns/{id}/occurrences [get]
func (h *PatternHandler) Occurrences(c *gin.Context) {
	result, err := h.service.Occurrences(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Materialize godoc
// @Summary Create the class sessions a pattern describes
// @Description Idempotent: sessions that already exist are left untouched.
// @Tags Patterns
// @Produce json
// @Param id path string true "Pattern ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /patterns/{id}/materialize [post]
func (h *PatternHandler) Materialize(c *gin.Context) {
	result, err := h.service.Materialize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"created": len(result.Created)})
}

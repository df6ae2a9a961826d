package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

type allocationService interface {
	Allocate(ctx context.Context, sessionID, registrationID string) (*dto.AllocationResult, error)
	Release(ctx context.Context, sessionID, registrationID string) (int64, error)
	Ledger(ctx context.Context, sessionID string) (*dto.LedgerResponse, error)
	Backfill(ctx context.Context) (*dto.BackfillResult, error)
}

type sessionReleaseService interface {
	ReleaseTime(ctx context.Context, sessionID string) (*dto.ReleaseTimeResponse, error)
	CancelSession(ctx context.Context, sessionID string) (*dto.CancelSessionResult, error)
}

type sessionDeleter interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// ClassSessionHandler exposes per-session allocation and lifecycle endpoints.
type ClassSessionHandler struct {
	allocations allocationService
	release     sessionReleaseService
	sessions    sessionDeleter
}

// NewClassSessionHandler builds a class session handler.
func NewClassSessionHandler(allocations allocationService, release sessionReleaseService, sessions sessionDeleter) *ClassSessionHandler {
	return &ClassSessionHandler{allocations: allocations, release: release, sessions: sessions}
}

// Allocate godoc
// @Summary Allocate resources for a registration
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Class session ID"
// @Param payload body dto.AllocateRequest true "Registration"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "allocation already existed"
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/allocations [post]
func (h *ClassSessionHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid allocation payload"))
		return
	}
	result, err := h.allocations.Allocate(c.Request.Context(), c.Param("id"), req.RegistrationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Existing {
		response.JSON(c, http.StatusOK, result, nil)
		return
	}
	response.Created(c, result)
}

// Release godoc
// @Summary Release a registration's allocations
// @Tags Sessions
// @Produce json
// @Param id path string true "Class session ID"
// @Param registrationId path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/allocations/{registrationId} [delete]
func (h *ClassSessionHandler) Release(c *gin.Context) {
	released, err := h.allocations.Release(c.Request.Context(), c.Param("id"), c.Param("registrationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"released": released}, nil)
}

// Ledger godoc
// @Summary List a session's allocation ledger with per-resource totals
// @Tags Sessions
// @Produce json
// @Param id path string true "Class session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/allocations [get]
func (h *ClassSessionHandler) Ledger(c *gin.Context) {
	ledger, err := h.allocations.Ledger(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledger, nil)
}

// Backfill godoc
// @Summary Allocate resources for confirmed reservations that have none
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/backfill [post]
func (h *ClassSessionHandler) Backfill(c *gin.Context) {
	result, err := h.allocations.Backfill(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ReleaseTime godoc
// @Summary Show when a session's resource hold lapses
// @Tags Sessions
// @Produce json
// @Param id path string true "Class session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/release-time [get]
func (h *ClassSessionHandler) ReleaseTime(c *gin.Context) {
	result, err := h.release.ReleaseTime(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a class session and release its resources
// @Tags Sessions
// @Produce json
// @Param id path string true "Class session ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *ClassSessionHandler) Cancel(c *gin.Context) {
	result, err := h.release.CancelSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete a class session without active reservations
// @Tags Sessions
// @Param id path string true "Class session ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *ClassSessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

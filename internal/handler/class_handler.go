package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/service"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

type requirementService interface {
	Resolve(ctx context.Context, classID string, participants int) (*dto.RequirementsResponse, error)
}

type duplicateCleaner interface {
	CleanupDuplicates(ctx context.Context, classID string) (*dto.CleanupResult, error)
}

type sessionExporter interface {
	ExportSessions(ctx context.Context, classID string, query dto.SessionExportQuery) (*service.ExportFile, error)
}

// ClassHandler exposes class-level requirement, cleanup and export endpoints.
type ClassHandler struct {
	requirements requirementService
	cleaner      duplicateCleaner
	exporter     sessionExporter
}

// NewClassHandler builds a class handler.
func NewClassHandler(requirements requirementService, cleaner duplicateCleaner, exporter sessionExporter) *ClassHandler {
	return &ClassHandler{requirements: requirements, cleaner: cleaner, exporter: exporter}
}

// Requirements godoc
// @Summary Resolve a class's resource needs for a head count
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Param participants query int false "Head count (defaults to 1)"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/requirements [get]
func (h *ClassHandler) Requirements(c *gin.Context) {
	participants := 1
	if raw := c.Query("participants"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "participants must be an integer"))
			return
		}
		participants = value
	}
	result, err := h.requirements.Resolve(c.Request.Context(), c.Param("id"), participants)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CleanupDuplicates godoc
// @Summary Remove duplicate sessions of a class
// @Description Keeps the most enrolled session per slot; duplicates with active reservations are reported, not deleted.
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions/cleanup [post]
func (h *ClassHandler) CleanupDuplicates(c *gin.Context) {
	result, err := h.cleaner.CleanupDuplicates(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExportSessions godoc
// @Summary Export a class's sessions
// @Tags Classes
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /classes/{id}/sessions/export [get]
func (h *ClassHandler) ExportSessions(c *gin.Context) {
	var query dto.SessionExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.exporter.ExportSessions(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

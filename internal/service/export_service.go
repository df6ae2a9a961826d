package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/recurrence"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

var sessionExportColumns = []string{"session_id", "date", "start", "end", "status", "enrolled", "capacity", "pattern_id", "released_at"}

type sessionLister interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportFile is a rendered export ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders a class's session schedule as CSV or PDF.
type ExportService struct {
	classes   classReader
	sessions  sessionLister
	csv       datasetRenderer
	pdf       datasetRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExportService constructs an ExportService; nil renderers fall back to pkg/export.
func NewExportService(classes classReader, sessions sessionLister, csv, pdf datasetRenderer, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = &export.PDFExporter{Widths: map[string]float64{"session_id": 2.5, "released_at": 1.8}}
	}
	return &ExportService{
		classes:   classes,
		sessions:  sessions,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
	}
}

// ExportSessions renders the sessions of classID within the optional date range.
func (s *ExportService) ExportSessions(ctx context.Context, classID string, query dto.SessionExportQuery) (*ExportFile, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, "class", classID)
	}

	filter := models.SessionFilter{ClassID: classID}
	if query.From != "" {
		from, err := recurrence.ParseDate(query.From)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := recurrence.ParseDate(query.To)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}

	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list sessions")
	}

	format := strings.ToLower(query.Format)
	if format == "" {
		format = ExportFormatCSV
	}
	renderer := s.csv
	if format == ExportFormatPDF {
		renderer = s.pdf
	}

	data, err := renderer.Render(sessionDataset(class, sessions))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("session export rendered",
		zap.String("class_id", classID),
		zap.String("format", format),
		zap.Int("rows", len(sessions)),
	)
	return &ExportFile{
		Filename:    fmt.Sprintf("sessions_%s_%s.%s", classID, time.Now().UTC().Format("20060102"), format),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func sessionDataset(class *models.Class, sessions []models.ClassSession) export.Dataset {
	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		var patternID, releasedAt string
		if session.PatternID != nil {
			patternID = *session.PatternID
		}
		if session.ResourcesReleasedAt != nil {
			releasedAt = session.ResourcesReleasedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			session.ID,
			session.SessionDate.Format(recurrence.DateLayout),
			session.StartTime,
			session.EndTime,
			string(session.Status),
			strconv.Itoa(session.CurrentEnrollment),
			strconv.Itoa(session.MaxStudents),
			patternID,
			releasedAt,
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s sessions", class.Name),
		Columns: sessionExportColumns,
		Rows:    rows,
	}
}

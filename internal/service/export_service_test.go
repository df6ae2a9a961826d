package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

type filteringSessionLister struct {
	sessions []models.ClassSession
	filters  []models.SessionFilter
}

func (l *filteringSessionLister) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error) {
	l.filters = append(l.filters, filter)
	return l.sessions, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *filteringSessionLister) {
	t.Helper()
	released := time.Date(2026, 2, 13, 18, 0, 0, 0, time.UTC)
	lister := &filteringSessionLister{sessions: []models.ClassSession{
		{ID: "s1", ClassID: "class-1", PatternID: strPtr("pattern-1"), SessionDate: mustDate(t, "2026-02-14"), StartTime: "18:00", EndTime: "20:30", MaxStudents: 8, CurrentEnrollment: 3, Status: models.SessionStatusScheduled, ResourcesReleasedAt: &released},
		{ID: "s2", ClassID: "class-1", SessionDate: mustDate(t, "2026-02-21"), StartTime: "18:00", EndTime: "20:30", MaxStudents: 8, Status: models.SessionStatusCancelled},
	}}
	classes := classStub{classes: map[string]*models.Class{"class-1": {ID: "class-1", Name: "Wheel Throwing I", MaxStudents: 8}}}
	return NewExportService(classes, lister, nil, nil, nil, zap.NewNop()), lister
}

func TestExportSessionsCSV(t *testing.T) {
	svc, lister := newExportServiceForTest(t)

	file, err := svc.ExportSessions(context.Background(), "class-1", dto.SessionExportQuery{From: "2026-02-01", To: "2026-02-28"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(file.Filename, "sessions_class-1_"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "session_id,date,start,end,status,enrolled,capacity,pattern_id,released_at", lines[0])
	assert.Equal(t, "s1,2026-02-14,18:00,20:30,scheduled,3,8,pattern-1,2026-02-13T18:00:00Z", lines[1])
	assert.Equal(t, "s2,2026-02-21,18:00,20:30,cancelled,0,8,,", lines[2])

	require.Len(t, lister.filters, 1)
	require.NotNil(t, lister.filters[0].From)
	assert.Equal(t, "2026-02-01", lister.filters[0].From.Format("2006-01-02"))
}

func TestExportSessionsPDF(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	file, err := svc.ExportSessions(context.Background(), "class-1", dto.SessionExportQuery{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestExportSessionsRejectsBadQuery(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.ExportSessions(context.Background(), "class-1", dto.SessionExportQuery{Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ExportSessions(context.Background(), "class-1", dto.SessionExportQuery{From: "2026-03-01", To: "2026-02-01"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ExportSessions(context.Background(), "missing", dto.SessionExportQuery{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

type patternServiceMock struct {
	previewReq  dto.ExpandPatternRequest
	previewErr  error
	materialize *dto.MaterializeResult
}

func (m *patternServiceMock) Preview(req dto.ExpandPatternRequest) (*dto.ExpandPatternResponse, error) {
	m.previewReq = req
	if m.previewErr != nil {
		return nil, m.previewErr
	}
	return &dto.ExpandPatternResponse{Rule: req.Rule, Occurrences: []dto.OccurrenceResponse{{Date: "2026-02-14", StartTime: "18:00", EndTime: "20:30"}}}, nil
}

func (m *patternServiceMock) Occurrences(ctx context.Context, patternID string) (*dto.ExpandPatternResponse, error) {
	return &dto.ExpandPatternResponse{Rule: "FREQ=DAILY;COUNT=1"}, nil
}

func (m *patternServiceMock) Materialize(ctx context.Context, patternID string) (*dto.MaterializeResult, error) {
	return m.materialize, nil
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, dest))
}

func TestPatternHandlerExpand(t *testing.T) {
	mockSvc := &patternServiceMock{}
	handler := NewPatternHandler(mockSvc)

	body := `{"rule":"FREQ=WEEKLY;BYDAY=SA;COUNT=4","startDate":"2026-02-14","startTime":"18:00","durationHours":2.5}`
	c, w := newSessionContext(http.MethodPost, "/patterns/expand", []byte(body), nil)
	handler.Expand(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.5, mockSvc.previewReq.DurationHours)
	var resp dto.ExpandPatternResponse
	decodeInto(t, w, &resp)
	require.Len(t, resp.Occurrences, 1)
}

func TestPatternHandlerExpandInvalidRule(t *testing.T) {
	handler := NewPatternHandler(&patternServiceMock{previewErr: appErrors.WithDetails(appErrors.ErrInvalidRule, "unknown key FOO", map[string]any{"rule": "FOO=1"})})

	body := `{"rule":"FOO=1","startDate":"2026-02-14","startTime":"18:00","durationHours":1}`
	c, w := newSessionContext(http.MethodPost, "/patterns/expand", []byte(body), nil)
	handler.Expand(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RULE", decodeEnvelope(t, w).Error.Code)
}

func TestPatternHandlerMaterialize(t *testing.T) {
	handler := NewPatternHandler(&patternServiceMock{materialize: &dto.MaterializeResult{
		PatternID: "pattern-1",
		Expanded:  4,
		Existing:  2,
		Created:   []models.ClassSession{{ID: "s3"}, {ID: "s4"}},
	}})

	c, w := newSessionContext(http.MethodPost, "/patterns/pattern-1/materialize", nil, gin.Params{{Key: "id", Value: "pattern-1"}})
	handler.Materialize(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 2, env.Meta["created"])
}

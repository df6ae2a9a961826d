package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/middleware"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/service"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

type availabilityServiceMock struct {
	resp     *dto.AvailabilityResponse
	cacheHit bool
	err      error
}

func (m *availabilityServiceMock) GetAvailability(ctx context.Context, id string) (*dto.AvailabilityResponse, bool, error) {
	return m.resp, m.cacheHit, m.err
}

type waitlistServiceMock struct {
	joinReq     dto.JoinWaitlistRequest
	joinResp    *dto.JoinWaitlistResponse
	joinErr     error
	leaveID     string
	leaveErr    error
	promoteResp *dto.PromotionResult
	promoteErr  error
}

func (m *waitlistServiceMock) Join(ctx context.Context, sessionID string, req dto.JoinWaitlistRequest) (*dto.JoinWaitlistResponse, error) {
	m.joinReq = req
	return m.joinResp, m.joinErr
}

func (m *waitlistServiceMock) Leave(ctx context.Context, entryID string) error {
	m.leaveID = entryID
	return m.leaveErr
}

func (m *waitlistServiceMock) Promote(ctx context.Context, sessionID, resourceID string) (*dto.PromotionResult, error) {
	return m.promoteResp, m.promoteErr
}

type envelopeBody struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestOpenStudioHandlerAvailabilityReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOpenStudioHandler(&availabilityServiceMock{
		resp:     &dto.AvailabilityResponse{OpenStudioSessionID: "os-1", Resources: []models.ResourceAvailability{{ResourceID: "wheel", Total: 10, Available: 5}}},
		cacheHit: true,
	}, &waitlistServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/open-studio/os-1/availability", nil)
	c.Params = gin.Params{{Key: "id", Value: "os-1"}}
	middleware.SetCacheHit(c, false)

	handler.Availability(c)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body.Meta["cache_hit"])
	var resp dto.AvailabilityResponse
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	assert.Equal(t, 5, resp.Resources[0].Available)
}

func TestOpenStudioHandlerAvailabilityNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOpenStudioHandler(&availabilityServiceMock{err: appErrors.ErrNotFound}, &waitlistServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/open-studio/nope/availability", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.Availability(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenStudioHandlerJoinWaitlist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &waitlistServiceMock{joinResp: &dto.JoinWaitlistResponse{Position: 2}}
	handler := NewOpenStudioHandler(&availabilityServiceMock{}, mockSvc)

	payload, _ := json.Marshal(dto.JoinWaitlistRequest{SubscriptionID: "sub-1", ResourceID: "wheel", StartTime: "18:00", EndTime: "20:00"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/open-studio/os-1/waitlist", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "os-1"}}

	handler.JoinWaitlist(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "sub-1", mockSvc.joinReq.SubscriptionID)
}

func TestOpenStudioHandlerJoinWaitlistDefaultsMemberSubscription(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &waitlistServiceMock{joinResp: &dto.JoinWaitlistResponse{Position: 1}}
	handler := NewOpenStudioHandler(&availabilityServiceMock{}, mockSvc)

	payload, _ := json.Marshal(dto.JoinWaitlistRequest{ResourceID: "wheel", StartTime: "18:00", EndTime: "20:00"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/open-studio/os-1/waitlist", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "os-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "member-7", Role: models.RoleMember})

	handler.JoinWaitlist(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "member-7", mockSvc.joinReq.SubscriptionID)
}

func TestOpenStudioHandlerJoinWaitlistInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOpenStudioHandler(&availabilityServiceMock{}, &waitlistServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/open-studio/os-1/waitlist", bytes.NewBufferString(`{"resourceId":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.JoinWaitlist(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenStudioHandlerPromoteOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		result   *dto.PromotionResult
		wantCode int
		wantErr  string
	}{
		{name: "promoted", result: &dto.PromotionResult{Promoted: true}, wantCode: http.StatusOK},
		{name: "empty", result: &dto.PromotionResult{Reason: service.PromotionEmpty}, wantCode: http.StatusNotFound, wantErr: appErrors.ErrWaitlistEmpty.Code},
		{
			name:     "blocked",
			result:   &dto.PromotionResult{Reason: service.PromotionBlocked, Entry: &models.WaitlistEntry{ID: "entry-1", Quantity: 3}},
			wantCode: http.StatusConflict,
			wantErr:  appErrors.ErrInsufficientSpaces.Code,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			handler := NewOpenStudioHandler(&availabilityServiceMock{}, &waitlistServiceMock{promoteResp: tc.result})

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodPost, "/open-studio/os-1/waitlist/wheel/promote", nil)
			c.Params = gin.Params{{Key: "id", Value: "os-1"}, {Key: "resourceId", Value: "wheel"}}

			handler.Promote(c)
			require.Equal(t, tc.wantCode, w.Code)
			if tc.wantErr != "" {
				body := decodeEnvelope(t, w)
				require.NotNil(t, body.Error)
				assert.Equal(t, tc.wantErr, body.Error.Code)
				assert.Equal(t, "wheel", body.Error.Details["resourceId"])
			}
		})
	}
}

func TestOpenStudioHandlerLeaveWaitlist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &waitlistServiceMock{}
	handler := NewOpenStudioHandler(&availabilityServiceMock{}, mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/waitlist/entry-1", nil)
	c.Params = gin.Params{{Key: "entryId", Value: "entry-1"}}

	handler.LeaveWaitlist(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "entry-1", mockSvc.leaveID)
}

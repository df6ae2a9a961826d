package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/recurrence"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

type openStudioReader interface {
	FindSession(ctx context.Context, exec sqlx.ExtContext, id string) (*models.OpenStudioSession, error)
	ListConfirmedBookings(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.OpenStudioBooking, error)
}

type studioResourceReader interface {
	ListByStudio(ctx context.Context, exec sqlx.ExtContext, studioID string) ([]models.StudioResource, error)
	ListRequirementsForClasses(ctx context.Context, exec sqlx.ExtContext, classIDs []string) ([]models.ResourceRequirement, error)
}

type sessionHoldReader interface {
	ListHoldsOnDate(ctx context.Context, exec sqlx.ExtContext, studioID string, date time.Time) ([]models.SessionHold, error)
}

type allocationUsageReader interface {
	UsageForSessions(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string) ([]models.ResourceUsage, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AvailabilityConfig tunes availability computation.
type AvailabilityConfig struct {
	DefaultReleaseHours float64
	CacheTTL            time.Duration
}

// AvailabilityService computes free open-studio capacity per resource.
type AvailabilityService struct {
	openStudio openStudioReader
	resources  studioResourceReader
	holds      sessionHoldReader
	usage      allocationUsageReader
	cache      availabilityCache
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        AvailabilityConfig
	now        func() time.Time
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(
	openStudio openStudioReader,
	resources studioResourceReader,
	holds sessionHoldReader,
	usage allocationUsageReader,
	cache availabilityCache,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg AvailabilityConfig,
) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultReleaseHours <= 0 {
		cfg.DefaultReleaseHours = 24
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &AvailabilityService{
		openStudio: openStudio,
		resources:  resources,
		holds:      holds,
		usage:      usage,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

func availabilityCacheKey(openStudioSessionID string) string {
	return "availability:" + openStudioSessionID
}

// GetAvailability returns per-resource capacity for the whole open-studio session window.
// The boolean reports whether the figures came from cache.
func (s *AvailabilityService) GetAvailability(ctx context.Context, openStudioSessionID string) (*dto.AvailabilityResponse, bool, error) {
	key := availabilityCacheKey(openStudioSessionID)
	if s.cache != nil {
		var cached dto.AvailabilityResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	session, err := s.openStudio.FindSession(ctx, nil, openStudioSessionID)
	if err != nil {
		return nil, false, notFoundOr(err, "open studio session", openStudioSessionID)
	}
	window, err := NewWindow(session.SessionDate, session.StartTime, session.EndTime)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "open studio session has malformed times")
	}

	start := time.Now()
	resources, err := s.Compute(ctx, nil, session, window)
	s.metrics.ObserveDBQuery("availability", time.Since(start))
	if err != nil {
		return nil, false, internalError(err, "failed to compute availability")
	}

	resp := &dto.AvailabilityResponse{
		OpenStudioSessionID: session.ID,
		Date:                window.Date.Format(recurrence.DateLayout),
		StartTime:           session.StartTime,
		EndTime:             session.EndTime,
		GeneratedAt:         s.now().UTC(),
		Resources:           resources,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache availability", zap.String("open_studio_session_id", session.ID), zap.Error(err))
		}
	}
	return resp, false, nil
}

// Compute loads holds, allocations and bookings through exec and runs the calculator for window.
// Passing a transaction makes the figures consistent with locks held by the caller.
func (s *AvailabilityService) Compute(ctx context.Context, exec sqlx.ExtContext, session *models.OpenStudioSession, window Window) ([]models.ResourceAvailability, error) {
	resources, err := s.resources.ListByStudio(ctx, exec, session.StudioID)
	if err != nil {
		return nil, err
	}
	holds, err := s.holds.ListHoldsOnDate(ctx, exec, session.StudioID, window.Date)
	if err != nil {
		return nil, err
	}

	classIDs := make([]string, 0, len(holds))
	sessionIDs := make([]string, 0, len(holds))
	seen := make(map[string]struct{}, len(holds))
	for _, hold := range holds {
		sessionIDs = append(sessionIDs, hold.ID)
		if _, ok := seen[hold.ClassID]; ok {
			continue
		}
		seen[hold.ClassID] = struct{}{}
		classIDs = append(classIDs, hold.ClassID)
	}

	requirements, err := s.resources.ListRequirementsForClasses(ctx, exec, classIDs)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.UsageForSessions(ctx, exec, sessionIDs)
	if err != nil {
		return nil, err
	}
	bookings, err := s.openStudio.ListConfirmedBookings(ctx, exec, session.ID)
	if err != nil {
		return nil, err
	}

	return CalculateAvailability(AvailabilityInput{
		Window:              window,
		Now:                 s.now(),
		DefaultReleaseHours: s.cfg.DefaultReleaseHours,
		Resources:           resources,
		Holds:               holds,
		Requirements:        requirements,
		Usage:               usage,
		Bookings:            bookings,
	}), nil
}

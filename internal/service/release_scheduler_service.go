package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/recurrence"
	"github.com/noah-isme/studio-scheduler/pkg/database"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/messaging"
)

// Release triggers recorded in metrics and events.
const (
	ReleaseTriggerSchedule     = "schedule"
	ReleaseTriggerCancellation = "cancellation"
	ReleaseTriggerReservation  = "reservation"
)

type releaseSessionStore interface {
	FindHold(ctx context.Context, id string) (*models.SessionHold, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error
	MarkReleased(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error)
	DecrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string, n int) error
	ListUnreleasedBefore(ctx context.Context, through time.Time, limit int) ([]models.SessionHold, error)
	ListReleasedBetween(ctx context.Context, from, through time.Time, limit int) ([]models.SessionHold, error)
}

type releaseAllocationStore interface {
	DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int64, error)
	DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) (int64, error)
}

type reservationStore interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ReservationStatus) error
}

type waitlistPromoter interface {
	PromoteOverlapping(ctx context.Context, studioID string, date time.Time, startTime, endTime string) ([]dto.PromotionResult, error)
}

type openStudioBookingReader interface {
	ListSessionsOnDate(ctx context.Context, studioID string, date time.Time) ([]models.OpenStudioSession, error)
	ListConfirmedBookings(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.OpenStudioBooking, error)
}

// ReleaseConfig tunes release sweeps.
type ReleaseConfig struct {
	DefaultReleaseHours float64
	// Lookahead bounds the SQL pre-filter; sessions further out cannot be due yet.
	Lookahead time.Duration
	BatchSize int
}

// ReleaseSchedulerService frees class-held resources when their release time passes or the class is cancelled.
type ReleaseSchedulerService struct {
	sessions      releaseSessionStore
	allocations   releaseAllocationStore
	reservations  reservationStore
	registrations registrationReader
	openStudio    openStudioBookingReader
	waitlist      waitlistPromoter
	tx            txProvider
	cache         cacheInvalidator
	events        eventPublisher
	metrics       *MetricsService
	logger        *zap.Logger
	cfg           ReleaseConfig
	now           func() time.Time
}

// NewReleaseSchedulerService constructs the service.
func NewReleaseSchedulerService(
	sessions releaseSessionStore,
	allocations releaseAllocationStore,
	reservations reservationStore,
	registrations registrationReader,
	openStudio openStudioBookingReader,
	waitlist waitlistPromoter,
	tx txProvider,
	cache cacheInvalidator,
	events eventPublisher,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ReleaseConfig,
) *ReleaseSchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultReleaseHours <= 0 {
		cfg.DefaultReleaseHours = 24
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 31 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &ReleaseSchedulerService{
		sessions:      sessions,
		allocations:   allocations,
		reservations:  reservations,
		registrations: registrations,
		openStudio:    openStudio,
		waitlist:      waitlist,
		tx:            tx,
		cache:         cache,
		events:        events,
		metrics:       metrics,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
}

// HoldState places a class session on the HELD_BY_CLASS -> OPEN -> BOOKED path at now.
// booked reports whether open-studio bookings have since claimed the overlapping slot.
func HoldState(hold models.SessionHold, now time.Time, defaultHours float64, booked bool) models.HoldState {
	if hold.Status == models.SessionStatusScheduled && holdActive(hold, now, defaultHours) {
		return models.HoldStateHeld
	}
	if booked {
		return models.HoldStateBooked
	}
	return models.HoldStateOpen
}

// ReleaseTime reports when a session's hold lapses and its current state.
func (s *ReleaseSchedulerService) ReleaseTime(ctx context.Context, sessionID string) (*dto.ReleaseTimeResponse, error) {
	hold, err := s.sessions.FindHold(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "class session", sessionID)
	}
	start, err := recurrence.ParseClock(hold.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "class session has malformed start time")
	}
	hours := releaseHoursFor(*hold, s.cfg.DefaultReleaseHours)
	now := s.now()

	booked := false
	if !holdActive(*hold, now, s.cfg.DefaultReleaseHours) {
		booked, err = s.slotBooked(ctx, hold)
		if err != nil {
			return nil, internalError(err, "failed to inspect open studio bookings")
		}
	}

	return &dto.ReleaseTimeResponse{
		SessionID:    hold.ID,
		SessionStart: recurrence.Combine(hold.SessionDate, start),
		ReleaseHours: hours,
		ReleaseTime:  ComputeReleaseTime(hold.SessionDate, start, hours),
		State:        HoldState(*hold, now, s.cfg.DefaultReleaseHours, booked),
	}, nil
}

// slotBooked reports whether any confirmed open-studio booking overlaps the class session window.
func (s *ReleaseSchedulerService) slotBooked(ctx context.Context, hold *models.SessionHold) (bool, error) {
	if s.openStudio == nil {
		return false, nil
	}
	classWindow, err := NewWindow(hold.SessionDate, hold.StartTime, hold.EndTime)
	if err != nil {
		return false, err
	}
	sessions, err := s.openStudio.ListSessionsOnDate(ctx, hold.StudioID, classWindow.Date)
	if err != nil {
		return false, err
	}
	for _, os := range sessions {
		bookings, err := s.openStudio.ListConfirmedBookings(ctx, nil, os.ID)
		if err != nil {
			return false, err
		}
		for _, b := range bookings {
			w, err := NewWindow(classWindow.Date, b.StartTime, b.EndTime)
			if err == nil && classWindow.Overlaps(w) {
				return true, nil
			}
		}
	}
	return false, nil
}

// ReleaseDue marks every scheduled session whose release time has passed as released, then promotes waitlists.
// Each release commits on its own before promotion runs. Holds released earlier that are still upcoming
// get their promotions driven again, so a promotion lost after its release committed is retried next sweep.
func (s *ReleaseSchedulerService) ReleaseDue(ctx context.Context, now time.Time) (*dto.ReleaseSweepResult, error) {
	candidates, err := s.sessions.ListUnreleasedBefore(ctx, now.Add(s.cfg.Lookahead), s.cfg.BatchSize)
	if err != nil {
		return nil, internalError(err, "failed to list sessions awaiting release")
	}

	result := &dto.ReleaseSweepResult{Checked: len(candidates), Released: []string{}, Promotions: []dto.PromotionResult{}}
	for _, hold := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if holdActive(hold, now, s.cfg.DefaultReleaseHours) {
			continue
		}
		marked, err := s.sessions.MarkReleased(ctx, nil, hold.ID, now.UTC())
		if err != nil {
			s.logger.Warn("mark session released failed", zap.String("session_id", hold.ID), zap.Error(err))
			continue
		}
		if !marked {
			continue
		}
		result.Released = append(result.Released, hold.ID)
		promotions := s.afterRelease(ctx, hold, ReleaseTriggerSchedule, 0)
		result.Promotions = append(result.Promotions, promotions...)
	}
	result.Promotions = append(result.Promotions, s.revisitReleased(ctx, now, result)...)
	if len(result.Released) > 0 {
		s.logger.Info("release sweep finished",
			zap.Int("checked", result.Checked),
			zap.Int("released", len(result.Released)),
			zap.Int("promoted", len(result.Promotions)),
		)
	}
	return result, nil
}

// revisitReleased promotes again for released holds from today through the lookahead, skipping
// holds released by this sweep and windows already covered.
func (s *ReleaseSchedulerService) revisitReleased(ctx context.Context, now time.Time, result *dto.ReleaseSweepResult) []dto.PromotionResult {
	if s.waitlist == nil {
		return nil
	}
	today := recurrence.CalendarDate(now)
	holds, err := s.sessions.ListReleasedBetween(ctx, today, now.Add(s.cfg.Lookahead), s.cfg.BatchSize)
	if err != nil {
		s.logger.Warn("list released sessions failed", zap.Error(err))
		return nil
	}
	seen := make(map[string]bool, len(holds)+len(result.Released))
	for _, id := range result.Released {
		seen[id] = true
	}
	windows := make(map[string]bool, len(holds))
	var promotions []dto.PromotionResult
	for _, hold := range holds {
		if seen[hold.ID] {
			continue
		}
		key := hold.StudioID + " " + hold.SessionDate.Format(recurrence.DateLayout) + " " + hold.StartTime + "-" + hold.EndTime
		if windows[key] {
			continue
		}
		windows[key] = true
		result.Revisited++
		promoted, err := s.waitlist.PromoteOverlapping(ctx, hold.StudioID, hold.SessionDate, hold.StartTime, hold.EndTime)
		if err != nil {
			s.logger.Warn("waitlist promotion retry failed", zap.String("session_id", hold.ID), zap.Error(err))
			continue
		}
		promotions = append(promotions, promoted...)
	}
	return promotions
}

// CancelSession cancels a class session, frees its allocations and releases its hold, then promotes waitlists.
func (s *ReleaseSchedulerService) CancelSession(ctx context.Context, sessionID string) (*dto.CancelSessionResult, error) {
	hold, err := s.sessions.FindHold(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "class session", sessionID)
	}

	result := &dto.CancelSessionResult{SessionID: sessionID, Promotions: []dto.PromotionResult{}}
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		session, err := s.sessions.LockByID(ctx, tx, sessionID)
		if err != nil {
			return notFoundOr(err, "class session", sessionID)
		}
		if session.Status == models.SessionStatusCancelled && session.ResourcesReleasedAt != nil {
			result.AlreadyCancelled = true
			return nil
		}
		if session.Status == models.SessionStatusCompleted {
			return appErrors.WithDetails(appErrors.ErrPreconditionFailed, "class session already completed", map[string]any{"sessionId": sessionID})
		}
		if err := s.sessions.UpdateStatus(ctx, tx, sessionID, models.SessionStatusCancelled); err != nil {
			return err
		}
		removed, err := s.allocations.DeleteBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		result.ReleasedAllocations = removed
		_, err = s.sessions.MarkReleased(ctx, tx, sessionID, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, internalError(err, "failed to cancel class session")
	}
	if result.AlreadyCancelled {
		return result, nil
	}

	result.Promotions = append(result.Promotions, s.afterRelease(ctx, *hold, ReleaseTriggerCancellation, result.ReleasedAllocations)...)
	s.logger.Info("class session cancelled",
		zap.String("session_id", sessionID),
		zap.Int64("released_allocations", result.ReleasedAllocations),
		zap.Int("promoted", len(result.Promotions)),
	)
	return result, nil
}

// CancelReservation cancels a reservation, frees the registration's allocations and lowers enrollment, then promotes.
func (s *ReleaseSchedulerService) CancelReservation(ctx context.Context, reservationID string) (*dto.CancelReservationResult, error) {
	result := &dto.CancelReservationResult{ReservationID: reservationID, Promotions: []dto.PromotionResult{}}
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		reservation, err := s.reservations.LockByID(ctx, tx, reservationID)
		if err != nil {
			return notFoundOr(err, "reservation", reservationID)
		}
		result.SessionID = reservation.SessionID
		if reservation.Status == models.ReservationCancelled {
			result.AlreadyCancelled = true
			return nil
		}
		registration, err := s.registrations.FindRegistration(ctx, tx, reservation.RegistrationID)
		if err != nil {
			return notFoundOr(err, "registration", reservation.RegistrationID)
		}
		if err := s.reservations.UpdateStatus(ctx, tx, reservationID, models.ReservationCancelled); err != nil {
			return err
		}
		removed, err := s.allocations.DeleteByRegistration(ctx, tx, reservation.SessionID, reservation.RegistrationID)
		if err != nil {
			return err
		}
		result.ReleasedAllocations = removed
		return s.sessions.DecrementEnrollment(ctx, tx, reservation.SessionID, registration.Participants())
	})
	if err != nil {
		return nil, internalError(err, "failed to cancel reservation")
	}
	if result.AlreadyCancelled {
		return result, nil
	}

	hold, err := s.sessions.FindHold(ctx, result.SessionID)
	if err != nil {
		s.logger.Warn("load session after reservation cancel failed", zap.String("session_id", result.SessionID), zap.Error(err))
		invalidateAvailability(ctx, s.cache, s.logger)
		return result, nil
	}
	result.Promotions = append(result.Promotions, s.afterRelease(ctx, *hold, ReleaseTriggerReservation, result.ReleasedAllocations)...)
	return result, nil
}

// afterRelease runs the post-commit steps of every release path. Promotion failures are logged, never returned.
func (s *ReleaseSchedulerService) afterRelease(ctx context.Context, hold models.SessionHold, trigger string, releasedAllocations int64) []dto.PromotionResult {
	s.metrics.RecordRelease(trigger)
	invalidateAvailability(ctx, s.cache, s.logger)
	publishEvent(ctx, s.events, s.logger, messaging.RoutingResourcesReleased, map[string]any{
		"sessionId":           hold.ID,
		"classId":             hold.ClassID,
		"studioId":            hold.StudioID,
		"sessionDate":         hold.SessionDate.Format(recurrence.DateLayout),
		"startTime":           hold.StartTime,
		"endTime":             hold.EndTime,
		"trigger":             trigger,
		"releasedAllocations": releasedAllocations,
	})

	if s.waitlist == nil {
		return nil
	}
	promotions, err := s.waitlist.PromoteOverlapping(ctx, hold.StudioID, hold.SessionDate, hold.StartTime, hold.EndTime)
	if err != nil {
		s.logger.Warn("waitlist promotion after release failed",
			zap.String("session_id", hold.ID),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
	}
	return promotions
}

package service

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/pkg/database"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/messaging"
)

// Promotion outcomes.
const (
	PromotionPromoted = "promoted"
	PromotionBlocked  = "blocked"
	PromotionEmpty    = "empty"
)

// maxPromotionsPerQueue bounds a single PromoteAll loop.
const maxPromotionsPerQueue = 500

type waitlistStore interface {
	LockQueueKey(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error
	LockQueue(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) ([]models.WaitlistEntry, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WaitlistEntry, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	Renumber(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error
	ListQueues(ctx context.Context, sessionIDs []string) ([]models.WaitlistQueue, error)
}

type openStudioBookingStore interface {
	FindSession(ctx context.Context, exec sqlx.ExtContext, id string) (*models.OpenStudioSession, error)
	ListSessionsOnDate(ctx context.Context, studioID string, date time.Time) ([]models.OpenStudioSession, error)
	InsertBooking(ctx context.Context, exec sqlx.ExtContext, booking *models.OpenStudioBooking) error
}

type waitlistResourceStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudioResource, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.StudioResource, error)
}

type slotCalculator interface {
	Compute(ctx context.Context, exec sqlx.ExtContext, session *models.OpenStudioSession, window Window) ([]models.ResourceAvailability, error)
}

// WaitlistService manages FIFO waitlists per open-studio session, resource and time slot.
type WaitlistService struct {
	entries    waitlistStore
	openStudio openStudioBookingStore
	resources  waitlistResourceStore
	slots      slotCalculator
	tx         txProvider
	cache      cacheInvalidator
	events     eventPublisher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewWaitlistService constructs the service.
func NewWaitlistService(
	entries waitlistStore,
	openStudio openStudioBookingStore,
	resources waitlistResourceStore,
	slots slotCalculator,
	tx txProvider,
	cache cacheInvalidator,
	events eventPublisher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *WaitlistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistService{
		entries:    entries,
		openStudio: openStudio,
		resources:  resources,
		slots:      slots,
		tx:         tx,
		cache:      cache,
		events:     events,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Join appends a subscriber to the end of the queue for its resource time slot and returns the new position.
func (s *WaitlistService) Join(ctx context.Context, sessionID string, req dto.JoinWaitlistRequest) (*dto.JoinWaitlistResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist payload")
	}
	session, err := s.openStudio.FindSession(ctx, nil, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "open studio session", sessionID)
	}
	resource, err := s.resources.FindByID(ctx, nil, req.ResourceID)
	if err != nil {
		return nil, notFoundOr(err, "studio resource", req.ResourceID)
	}
	if resource.StudioID != session.StudioID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource belongs to another studio")
	}

	sessionWindow, err := NewWindow(session.SessionDate, session.StartTime, session.EndTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "open studio session has malformed times")
	}
	slot, err := NewWindow(session.SessionDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if !slot.Start.Before(slot.End) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	if !sessionWindow.Contains(slot) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot must fall inside the open studio session")
	}

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	if quantity > resource.TotalQuantity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity exceeds the resource pool")
	}

	entry := models.WaitlistEntry{
		SubscriptionID: req.SubscriptionID,
		SessionID:      sessionID,
		ResourceID:     req.ResourceID,
		StartTime:      slot.Start.String(),
		EndTime:        slot.End.String(),
		Quantity:       quantity,
	}
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.entries.LockQueueKey(ctx, tx, sessionID, req.ResourceID); err != nil {
			return err
		}
		queue, err := s.entries.LockQueue(ctx, tx, sessionID, req.ResourceID)
		if err != nil {
			return err
		}
		position := 0
		for _, e := range queue {
			if e.StartTime == entry.StartTime && e.EndTime == entry.EndTime && e.Position > position {
				position = e.Position
			}
		}
		entry.Position = position + 1
		return s.entries.Insert(ctx, tx, &entry)
	})
	if err != nil {
		return nil, internalError(err, "failed to join waitlist")
	}
	return &dto.JoinWaitlistResponse{Position: entry.Position, Entry: entry}, nil
}

// Leave removes an entry and closes the gap in its queue.
func (s *WaitlistService) Leave(ctx context.Context, entryID string) error {
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		entry, err := s.entries.FindByID(ctx, tx, entryID)
		if err != nil {
			return notFoundOr(err, "waitlist entry", entryID)
		}
		if err := s.entries.LockQueueKey(ctx, tx, entry.SessionID, entry.ResourceID); err != nil {
			return err
		}
		if err := s.entries.Delete(ctx, tx, entryID); err != nil {
			return err
		}
		return s.entries.Renumber(ctx, tx, entry.SessionID, entry.ResourceID)
	})
	if err != nil {
		return internalError(err, "failed to leave waitlist")
	}
	return nil
}

// Promote books the longest-waiting slot head whose time slot has room for it.
// Each (start, end) slot is its own FIFO queue, so a head that does not fit only blocks its own slot.
// Booking, dequeue and renumbering commit together; on any failure the entry keeps waiting.
func (s *WaitlistService) Promote(ctx context.Context, sessionID, resourceID string) (*dto.PromotionResult, error) {
	session, err := s.openStudio.FindSession(ctx, nil, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "open studio session", sessionID)
	}

	result := &dto.PromotionResult{SessionID: sessionID, ResourceID: resourceID}
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.entries.LockQueueKey(ctx, tx, sessionID, resourceID); err != nil {
			return err
		}
		if _, err := s.resources.LockForUpdate(ctx, tx, []string{resourceID}); err != nil {
			return err
		}
		queue, err := s.entries.LockQueue(ctx, tx, sessionID, resourceID)
		if err != nil {
			return err
		}
		if len(queue) == 0 {
			result.Reason = PromotionEmpty
			return nil
		}
		heads := slotHeads(queue)
		var (
			head models.WaitlistEntry
			fits bool
		)
		for _, candidate := range heads {
			free, err := s.freeUnits(ctx, tx, session, resourceID, candidate)
			if err != nil {
				return err
			}
			if free >= candidate.Quantity {
				head, fits = candidate, true
				break
			}
		}
		if !fits {
			result.Reason = PromotionBlocked
			result.Entry = &heads[0]
			return nil
		}

		booking := models.OpenStudioBooking{
			OpenStudioSessionID: sessionID,
			SubscriptionID:      head.SubscriptionID,
			ResourceID:          resourceID,
			StartTime:           head.StartTime,
			EndTime:             head.EndTime,
			Quantity:            head.Quantity,
			Status:              models.BookingConfirmed,
			WaitlistEntryID:     &head.ID,
		}
		if err := s.openStudio.InsertBooking(ctx, tx, &booking); err != nil {
			return err
		}
		if err := s.entries.Delete(ctx, tx, head.ID); err != nil {
			return err
		}
		if err := s.entries.Renumber(ctx, tx, sessionID, resourceID); err != nil {
			return err
		}
		result.Promoted = true
		result.Entry = &head
		result.Booking = &booking
		return nil
	})
	if err != nil {
		return nil, internalError(err, "failed to promote waitlist entry")
	}

	if !result.Promoted {
		s.metrics.RecordPromotion(result.Reason)
		return result, nil
	}
	s.metrics.RecordPromotion(PromotionPromoted)
	invalidateAvailability(ctx, s.cache, s.logger)
	publishEvent(ctx, s.events, s.logger, messaging.RoutingWaitlistPromoted, map[string]any{
		"sessionId":      sessionID,
		"resourceId":     resourceID,
		"entryId":        result.Entry.ID,
		"subscriptionId": result.Entry.SubscriptionID,
		"bookingId":      result.Booking.ID,
		"startTime":      result.Booking.StartTime,
		"endTime":        result.Booking.EndTime,
	})
	s.logger.Info("waitlist entry promoted",
		zap.String("session_id", sessionID),
		zap.String("resource_id", resourceID),
		zap.String("entry_id", result.Entry.ID),
		zap.String("booking_id", result.Booking.ID),
	)
	return result, nil
}

// PromoteAll promotes slot heads until every slot queue is empty or no head fits.
func (s *WaitlistService) PromoteAll(ctx context.Context, sessionID, resourceID string) ([]dto.PromotionResult, error) {
	var promoted []dto.PromotionResult
	for i := 0; i < maxPromotionsPerQueue; i++ {
		result, err := s.Promote(ctx, sessionID, resourceID)
		if err != nil {
			return promoted, err
		}
		if !result.Promoted {
			break
		}
		promoted = append(promoted, *result)
	}
	return promoted, nil
}

func (s *WaitlistService) freeUnits(ctx context.Context, tx sqlx.ExtContext, session *models.OpenStudioSession, resourceID string, entry models.WaitlistEntry) (int, error) {
	window, err := NewWindow(session.SessionDate, entry.StartTime, entry.EndTime)
	if err != nil {
		return 0, err
	}
	availability, err := s.slots.Compute(ctx, tx, session, window)
	if err != nil {
		return 0, err
	}
	for _, a := range availability {
		if a.ResourceID == resourceID {
			return a.Available, nil
		}
	}
	return 0, nil
}

// slotHeads returns the first entry of every time-slot queue, longest waiting first.
func slotHeads(queue []models.WaitlistEntry) []models.WaitlistEntry {
	bySlot := make(map[string]models.WaitlistEntry)
	for _, e := range queue {
		key := e.StartTime + "-" + e.EndTime
		if current, ok := bySlot[key]; !ok || queuedBefore(e, current) {
			bySlot[key] = e
		}
	}
	heads := make([]models.WaitlistEntry, 0, len(bySlot))
	for _, e := range bySlot {
		heads = append(heads, e)
	}
	sort.Slice(heads, func(i, j int) bool {
		if !heads[i].CreatedAt.Equal(heads[j].CreatedAt) {
			return heads[i].CreatedAt.Before(heads[j].CreatedAt)
		}
		return heads[i].ID < heads[j].ID
	})
	return heads
}

func queuedBefore(a, b models.WaitlistEntry) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// PromoteOverlapping drains the waitlists of open-studio sessions that overlap a class session's window.
func (s *WaitlistService) PromoteOverlapping(ctx context.Context, studioID string, date time.Time, startTime, endTime string) ([]dto.PromotionResult, error) {
	classWindow, err := NewWindow(date, startTime, endTime)
	if err != nil {
		return nil, err
	}
	sessions, err := s.openStudio.ListSessionsOnDate(ctx, studioID, classWindow.Date)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, os := range sessions {
		w, err := NewWindow(os.SessionDate, os.StartTime, os.EndTime)
		if err != nil || !classWindow.Overlaps(w) {
			continue
		}
		ids = append(ids, os.ID)
	}
	queues, err := s.entries.ListQueues(ctx, ids)
	if err != nil {
		return nil, err
	}
	var promoted []dto.PromotionResult
	for _, q := range queues {
		results, err := s.PromoteAll(ctx, q.SessionID, q.ResourceID)
		promoted = append(promoted, results...)
		if err != nil {
			return promoted, err
		}
	}
	return promoted, nil
}

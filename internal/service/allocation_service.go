package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/pkg/database"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

type allocationSessionReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
}

type registrationReader interface {
	FindRegistration(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error)
}

type allocationResourceStore interface {
	ListRequirements(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.ResourceRequirement, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.StudioResource, error)
}

type allocationLedger interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.ResourceAllocation, error)
	ListByRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) ([]models.ResourceAllocation, error)
	SumBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, resourceIDs []string) (map[string]int, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, allocations []models.ResourceAllocation) error
	DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) (int64, error)
}

type allocationReservationStore interface {
	LockActiveForRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) (*models.Reservation, error)
	ListBackfillCandidates(ctx context.Context, afterID string, limit int) ([]models.BackfillCandidate, error)
}

const defaultBackfillPageSize = 200

// AllocationService is the ledger of resource units held by registrations on class sessions.
type AllocationService struct {
	sessions      allocationSessionReader
	registrations registrationReader
	resources     allocationResourceStore
	ledger        allocationLedger
	reservations  allocationReservationStore
	tx            txProvider
	cache         cacheInvalidator
	metrics       *MetricsService
	logger        *zap.Logger
	backfillPage  int
}

// NewAllocationService constructs the service.
func NewAllocationService(
	sessions allocationSessionReader,
	registrations registrationReader,
	resources allocationResourceStore,
	ledger allocationLedger,
	reservations allocationReservationStore,
	tx txProvider,
	cache cacheInvalidator,
	metrics *MetricsService,
	logger *zap.Logger,
) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		sessions:      sessions,
		registrations: registrations,
		resources:     resources,
		ledger:        ledger,
		reservations:  reservations,
		tx:            tx,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		backfillPage:  defaultBackfillPageSize,
	}
}

// Allocate grants a registration the resources its class requires on a session.
// Either every requirement fits and all rows are written, or none are.
// A registration that already holds allocations on the session gets them back unchanged.
// The registration must hold an active reservation on the session; it stays locked until commit.
func (s *AllocationService) Allocate(ctx context.Context, sessionID, registrationID string) (*dto.AllocationResult, error) {
	session, err := s.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "class session", sessionID)
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "class session is cancelled", map[string]any{"sessionId": sessionID})
	}
	registration, err := s.registrations.FindRegistration(ctx, nil, registrationID)
	if err != nil {
		return nil, notFoundOr(err, "registration", registrationID)
	}
	if registration.ClassID != session.ClassID {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "registration belongs to a different class", map[string]any{
			"sessionId":      sessionID,
			"registrationId": registrationID,
		})
	}

	requirements, err := s.resources.ListRequirements(ctx, nil, session.ClassID)
	if err != nil {
		return nil, internalError(err, "failed to load resource requirements")
	}
	quantities := ResolveRequirements(requirements, registration.Participants())
	result := &dto.AllocationResult{SessionID: sessionID, RegistrationID: registrationID, Allocations: []models.ResourceAllocation{}}
	if len(quantities) == 0 {
		return result, nil
	}

	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		allocations, existing, err := s.allocateTx(ctx, tx, sessionID, registrationID, quantities)
		if err != nil {
			return err
		}
		result.Allocations = allocations
		result.Existing = existing
		return nil
	})
	if err != nil {
		var exhausted *ResourceExhaustedError
		if errors.As(err, &exhausted) {
			s.metrics.RecordAllocation(false)
			s.logger.Info("allocation rejected",
				zap.String("session_id", sessionID),
				zap.String("registration_id", registrationID),
				zap.String("resource_id", exhausted.ResourceID),
				zap.Int("requested", exhausted.Requested),
				zap.Int("available", exhausted.Available),
			)
			return nil, exhaustedError(exhausted)
		}
		return nil, internalError(err, "failed to allocate resources")
	}

	if !result.Existing {
		s.metrics.RecordAllocation(true)
		invalidateAvailability(ctx, s.cache, s.logger)
	}
	return result, nil
}

func (s *AllocationService) allocateTx(ctx context.Context, tx sqlx.ExtContext, sessionID, registrationID string, quantities []models.ResourceQuantity) ([]models.ResourceAllocation, bool, error) {
	if _, err := s.reservations.LockActiveForRegistration(ctx, tx, sessionID, registrationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "registration has no active reservation on this session", map[string]any{
				"sessionId":      sessionID,
				"registrationId": registrationID,
			})
		}
		return nil, false, err
	}

	ids := make([]string, 0, len(quantities))
	for _, q := range quantities {
		ids = append(ids, q.ResourceID)
	}
	sort.Strings(ids)

	locked, err := s.resources.LockForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, false, err
	}
	pools := make(map[string]models.StudioResource, len(locked))
	for _, resource := range locked {
		pools[resource.ID] = resource
	}

	existing, err := s.ledger.ListByRegistration(ctx, tx, sessionID, registrationID)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return existing, true, nil
	}

	used, err := s.ledger.SumBySession(ctx, tx, sessionID, ids)
	if err != nil {
		return nil, false, err
	}

	allocations := make([]models.ResourceAllocation, 0, len(quantities))
	for _, q := range quantities {
		pool, ok := pools[q.ResourceID]
		if !ok {
			return nil, false, appErrors.WithDetails(appErrors.ErrNotFound, "studio resource not found", map[string]any{"resourceId": q.ResourceID})
		}
		free := pool.TotalQuantity - used[q.ResourceID]
		if q.Quantity > free {
			if free < 0 {
				free = 0
			}
			return nil, false, &ResourceExhaustedError{
				SessionID:      sessionID,
				RegistrationID: registrationID,
				ResourceID:     q.ResourceID,
				Requested:      q.Quantity,
				Available:      free,
			}
		}
		allocations = append(allocations, models.ResourceAllocation{
			SessionID:      sessionID,
			ResourceID:     q.ResourceID,
			RegistrationID: registrationID,
			Quantity:       q.Quantity,
		})
	}
	if err := s.ledger.InsertBatch(ctx, tx, allocations); err != nil {
		return nil, false, err
	}
	return allocations, false, nil
}

// Release drops a registration's allocations on a session. Releasing twice is a no-op.
func (s *AllocationService) Release(ctx context.Context, sessionID, registrationID string) (int64, error) {
	removed, err := s.ledger.DeleteByRegistration(ctx, nil, sessionID, registrationID)
	if err != nil {
		return 0, internalError(err, "failed to release resources")
	}
	if removed > 0 {
		invalidateAvailability(ctx, s.cache, s.logger)
	}
	return removed, nil
}

// Ledger lists a session's allocations with per-resource totals.
func (s *AllocationService) Ledger(ctx context.Context, sessionID string) (*dto.LedgerResponse, error) {
	if _, err := s.sessions.FindByID(ctx, nil, sessionID); err != nil {
		return nil, notFoundOr(err, "class session", sessionID)
	}
	allocations, err := s.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, internalError(err, "failed to list allocations")
	}
	totals := make(map[string]int)
	var order []string
	for _, a := range allocations {
		if _, ok := totals[a.ResourceID]; !ok {
			order = append(order, a.ResourceID)
		}
		totals[a.ResourceID] += a.Quantity
	}
	sort.Strings(order)
	resp := &dto.LedgerResponse{SessionID: sessionID, Allocations: allocations, Totals: make([]dto.ResourceTotal, 0, len(order))}
	if resp.Allocations == nil {
		resp.Allocations = []models.ResourceAllocation{}
	}
	for _, id := range order {
		resp.Totals = append(resp.Totals, dto.ResourceTotal{ResourceID: id, Allocated: totals[id]})
	}
	return resp, nil
}

// Backfill allocates resources for active reservations that have none.
// Candidates are read page by page in reservation id order until none remain.
// Failures are collected per reservation and do not stop the sweep.
func (s *AllocationService) Backfill(ctx context.Context) (*dto.BackfillResult, error) {
	result := &dto.BackfillResult{Failed: []dto.BackfillFailure{}}
	after := ""
	for {
		page, err := s.reservations.ListBackfillCandidates(ctx, after, s.backfillPage)
		if err != nil {
			return result, internalError(err, "failed to list reservations for backfill")
		}
		for _, candidate := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Scanned++
			s.backfillOne(ctx, candidate, result)
		}
		if len(page) < s.backfillPage {
			break
		}
		after = page[len(page)-1].ReservationID
	}
	s.logger.Info("allocation backfill finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("allocated", result.Allocated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *AllocationService) backfillOne(ctx context.Context, candidate models.BackfillCandidate, result *dto.BackfillResult) {
	allocated, err := s.Allocate(ctx, candidate.SessionID, candidate.RegistrationID)
	if err != nil {
		result.Failed = append(result.Failed, dto.BackfillFailure{
			ReservationID:  candidate.ReservationID,
			SessionID:      candidate.SessionID,
			RegistrationID: candidate.RegistrationID,
			Reason:         appErrors.FromError(err).Code,
		})
		return
	}
	if len(allocated.Allocations) == 0 {
		result.Skipped++
		return
	}
	result.Allocated++
}

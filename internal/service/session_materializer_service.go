package service

import (
	"context"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/recurrence"
	"github.com/noah-isme/studio-scheduler/pkg/database"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/messaging"
)

type schedulePatternStore interface {
	FindByID(ctx context.Context, id string) (*models.SchedulePattern, error)
	LockForMaterialization(ctx context.Context, exec sqlx.ExtContext, patternID string) error
}

type materializerSessionStore interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	InsertIfMissing(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) (bool, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	CountActiveReservations(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
	DeleteCancelledReservations(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int64, error)
}

type allocationCounter interface {
	CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
}

// SessionMaterializerService turns schedule patterns into persisted class sessions.
type SessionMaterializerService struct {
	patterns    schedulePatternStore
	classes     classReader
	sessions    materializerSessionStore
	allocations allocationCounter
	tx          txProvider
	expander    *recurrence.Expander
	cache       cacheInvalidator
	events      eventPublisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// SessionMaterializerConfig tunes expansion limits.
type SessionMaterializerConfig struct {
	MaxOccurrences int
}

// NewSessionMaterializerService wires materializer dependencies.
func NewSessionMaterializerService(
	patterns schedulePatternStore,
	classes classReader,
	sessions materializerSessionStore,
	allocations allocationCounter,
	tx txProvider,
	cache cacheInvalidator,
	events eventPublisher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SessionMaterializerConfig,
) *SessionMaterializerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionMaterializerService{
		patterns:    patterns,
		classes:     classes,
		sessions:    sessions,
		allocations: allocations,
		tx:          tx,
		expander:    recurrence.NewExpander(cfg.MaxOccurrences),
		cache:       cache,
		events:      events,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Preview expands an unsaved rule.
func (s *SessionMaterializerService) Preview(req dto.ExpandPatternRequest) (*dto.ExpandPatternResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pattern payload")
	}
	rule, err := recurrence.ParseRule(req.Rule)
	if err != nil {
		return nil, ruleError(err)
	}
	startDate, err := recurrence.ParseDate(req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	startTime, err := recurrence.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	occurrences, err := s.expander.Expand(recurrence.Pattern{
		Rule:          rule,
		StartDate:     startDate,
		StartTime:     startTime,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		return nil, ruleError(err)
	}
	return &dto.ExpandPatternResponse{Rule: rule.String(), Occurrences: occurrenceResponses(occurrences)}, nil
}

// Occurrences expands a stored pattern without persisting anything.
func (s *SessionMaterializerService) Occurrences(ctx context.Context, patternID string) (*dto.ExpandPatternResponse, error) {
	pattern, err := s.patterns.FindByID(ctx, patternID)
	if err != nil {
		return nil, notFoundOr(err, "schedule pattern", patternID)
	}
	rule, occurrences, err := s.expand(pattern)
	if err != nil {
		return nil, err
	}
	return &dto.ExpandPatternResponse{Rule: rule.String(), Occurrences: occurrenceResponses(occurrences)}, nil
}

// Materialize creates the sessions a pattern implies that do not exist yet.
// Existing sessions are never modified, so repeated runs are no-ops.
func (s *SessionMaterializerService) Materialize(ctx context.Context, patternID string) (*dto.MaterializeResult, error) {
	pattern, err := s.patterns.FindByID(ctx, patternID)
	if err != nil {
		return nil, notFoundOr(err, "schedule pattern", patternID)
	}
	if !pattern.Active {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "schedule pattern is inactive", map[string]any{"patternId": patternID})
	}
	class, err := s.classes.FindByID(ctx, pattern.ClassID)
	if err != nil {
		return nil, notFoundOr(err, "class", pattern.ClassID)
	}
	_, occurrences, err := s.expand(pattern)
	if err != nil {
		return nil, err
	}

	capacity := class.MaxStudents
	if pattern.MaxStudents != nil {
		capacity = *pattern.MaxStudents
	}

	var created []models.ClassSession
	for attempt := 0; ; attempt++ {
		created, err = s.materializeOnce(ctx, pattern, capacity, occurrences)
		var dup *DuplicateSessionError
		if err == nil {
			break
		}
		if !errors.As(err, &dup) {
			return nil, internalError(err, "failed to materialize sessions")
		}
		s.logger.Info("concurrent materialization detected",
			zap.String("pattern_id", pattern.ID),
			zap.String("date", dup.Date),
			zap.String("start_time", dup.StartTime),
			zap.Int("attempt", attempt+1),
		)
		if attempt > 0 {
			created = nil
			break
		}
	}

	s.metrics.RecordSessionsMaterialized(len(created))
	if len(created) > 0 {
		ids := make([]string, 0, len(created))
		for _, session := range created {
			ids = append(ids, session.ID)
		}
		invalidateAvailability(ctx, s.cache, s.logger)
		publishEvent(ctx, s.events, s.logger, messaging.RoutingSessionsMaterialized, map[string]any{
			"patternId":  pattern.ID,
			"classId":    pattern.ClassID,
			"sessionIds": ids,
		})
	}
	if created == nil {
		created = []models.ClassSession{}
	}
	return &dto.MaterializeResult{
		PatternID: pattern.ID,
		Expanded:  len(occurrences),
		Existing:  len(occurrences) - len(created),
		Created:   created,
	}, nil
}

func (s *SessionMaterializerService) materializeOnce(ctx context.Context, pattern *models.SchedulePattern, capacity int, occurrences []recurrence.Occurrence) ([]models.ClassSession, error) {
	var created []models.ClassSession
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.patterns.LockForMaterialization(ctx, tx, pattern.ID); err != nil {
			return err
		}
		for _, occ := range occurrences {
			session := models.ClassSession{
				ClassID:     pattern.ClassID,
				PatternID:   &pattern.ID,
				ClassStepID: pattern.ClassStepID,
				SessionDate: occ.Date,
				StartTime:   occ.StartTime.String(),
				EndTime:     occ.EndTime.String(),
				MaxStudents: capacity,
				Status:      models.SessionStatusScheduled,
			}
			ok, err := s.sessions.InsertIfMissing(ctx, tx, &session)
			if err != nil {
				if database.IsUniqueViolation(err) {
					return &DuplicateSessionError{ClassID: pattern.ClassID, Date: occ.Date.Format(recurrence.DateLayout), StartTime: session.StartTime}
				}
				return err
			}
			if ok {
				created = append(created, session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteSession removes a session that nobody holds a reservation or allocation on.
// Cancelled reservations go with it in the same transaction.
func (s *SessionMaterializerService) DeleteSession(ctx context.Context, sessionID string) error {
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.sessions.LockByID(ctx, tx, sessionID); err != nil {
			return notFoundOr(err, "class session", sessionID)
		}
		active, err := s.sessions.CountActiveReservations(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		allocated, err := s.allocations.CountBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if active > 0 || allocated > 0 {
			return protectedError(&ProtectedDeletionError{SessionID: sessionID, ActiveReservations: active, Allocations: allocated})
		}
		return s.deleteWithCancelled(ctx, tx, sessionID)
	})
	if err != nil {
		return internalError(err, "failed to delete class session")
	}
	invalidateAvailability(ctx, s.cache, s.logger)
	return nil
}

// CleanupDuplicates resolves sessions of a class that share a pattern and calendar date.
// The survivor has the highest enrollment, then the oldest creation time, then the smallest id.
// Duplicates with active reservations are reported instead of deleted.
func (s *SessionMaterializerService) CleanupDuplicates(ctx context.Context, classID string) (*dto.CleanupResult, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, notFoundOr(err, "class", classID)
	}
	sessions, err := s.sessions.List(ctx, models.SessionFilter{ClassID: classID})
	if err != nil {
		return nil, internalError(err, "failed to list class sessions")
	}

	result := &dto.CleanupResult{ClassID: classID, Kept: []string{}, Deleted: []string{}, Protected: []dto.ProtectedDuplicate{}}
	for _, group := range groupDuplicates(sessions) {
		keep, rest := pickSurvivor(group)
		result.Kept = append(result.Kept, keep.ID)
		for _, dup := range rest {
			deleted, active, err := s.deleteDuplicate(ctx, dup.ID)
			if err != nil {
				return nil, internalError(err, "failed to delete duplicate session")
			}
			if deleted {
				result.Deleted = append(result.Deleted, dup.ID)
				continue
			}
			s.logger.Warn("duplicate session kept because it has active reservations",
				zap.String("class_id", classID),
				zap.String("session_id", dup.ID),
				zap.String("kept_session_id", keep.ID),
				zap.Int("active_reservations", active),
			)
			result.Protected = append(result.Protected, dto.ProtectedDuplicate{SessionID: dup.ID, KeptSessionID: keep.ID, ActiveReservations: active})
		}
	}
	if len(result.Deleted) > 0 {
		invalidateAvailability(ctx, s.cache, s.logger)
	}
	return result, nil
}

func (s *SessionMaterializerService) deleteDuplicate(ctx context.Context, sessionID string) (bool, int, error) {
	var (
		deleted bool
		active  int
	)
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.sessions.LockByID(ctx, tx, sessionID); err != nil {
			return err
		}
		count, err := s.sessions.CountActiveReservations(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		active = count
		if count > 0 {
			return nil
		}
		if err := s.deleteWithCancelled(ctx, tx, sessionID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, active, err
}

func (s *SessionMaterializerService) deleteWithCancelled(ctx context.Context, tx *sqlx.Tx, sessionID string) error {
	removed, err := s.sessions.DeleteCancelledReservations(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("removed cancelled reservations with session",
			zap.String("session_id", sessionID),
			zap.Int64("reservations", removed),
		)
	}
	return s.sessions.Delete(ctx, tx, sessionID)
}

func (s *SessionMaterializerService) expand(pattern *models.SchedulePattern) (recurrence.Rule, []recurrence.Occurrence, error) {
	rule, err := recurrence.ParseRule(pattern.Rule)
	if err != nil {
		return recurrence.Rule{}, nil, ruleError(err)
	}
	startTime, err := recurrence.ParseClock(pattern.StartTime)
	if err != nil {
		return recurrence.Rule{}, nil, ruleError(&recurrence.InvalidRuleError{Rule: pattern.Rule, Reason: err.Error()})
	}
	occurrences, err := s.expander.Expand(recurrence.Pattern{
		Rule:          rule,
		StartDate:     recurrence.CalendarDate(pattern.StartDate),
		StartTime:     startTime,
		DurationHours: pattern.DurationHours,
	})
	if err != nil {
		return recurrence.Rule{}, nil, ruleError(err)
	}
	return rule, occurrences, nil
}

func occurrenceResponses(occurrences []recurrence.Occurrence) []dto.OccurrenceResponse {
	out := make([]dto.OccurrenceResponse, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, dto.OccurrenceResponse{
			Date:      occ.Date.Format(recurrence.DateLayout),
			StartTime: occ.StartTime.String(),
			EndTime:   occ.EndTime.String(),
		})
	}
	return out
}

// groupDuplicates buckets sessions by pattern and calendar date and keeps only buckets with more than one session.
func groupDuplicates(sessions []models.ClassSession) [][]models.ClassSession {
	type key struct {
		pattern string
		date    string
	}
	buckets := make(map[key][]models.ClassSession)
	var order []key
	for _, session := range sessions {
		k := key{date: session.SessionDate.UTC().Format(recurrence.DateLayout)}
		if session.PatternID != nil {
			k.pattern = *session.PatternID
		}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], session)
	}
	var groups [][]models.ClassSession
	for _, k := range order {
		if len(buckets[k]) > 1 {
			groups = append(groups, buckets[k])
		}
	}
	return groups
}

// pickSurvivor orders a duplicate group and splits off the session to keep.
func pickSurvivor(group []models.ClassSession) (models.ClassSession, []models.ClassSession) {
	sorted := make([]models.ClassSession, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CurrentEnrollment != b.CurrentEnrollment {
			return a.CurrentEnrollment > b.CurrentEnrollment
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return sorted[0], sorted[1:]
}

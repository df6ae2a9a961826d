package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-scheduler/internal/dto"
	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/messaging"
)

type patternStoreStub struct {
	patterns map[string]*models.SchedulePattern
	locks    int
}

func (p *patternStoreStub) FindByID(ctx context.Context, id string) (*models.SchedulePattern, error) {
	pattern, ok := p.patterns[id]
	if !ok {
		return nil, fmt.Errorf("find schedule pattern: %w", sql.ErrNoRows)
	}
	return pattern, nil
}

func (p *patternStoreStub) LockForMaterialization(ctx context.Context, exec sqlx.ExtContext, patternID string) error {
	p.locks++
	return nil
}

type classStub struct {
	classes map[string]*models.Class
}

func (c classStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	class, ok := c.classes[id]
	if !ok {
		return nil, fmt.Errorf("find class: %w", sql.ErrNoRows)
	}
	return class, nil
}

type sessionStoreStub struct {
	sessions    []models.ClassSession
	active      map[string]int
	cancelled   map[string]int
	collideOnce bool
	seq         int
}

func (s *sessionStoreStub) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error) {
	var out []models.ClassSession
	for _, session := range s.sessions {
		if filter.ClassID != "" && session.ClassID != filter.ClassID {
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *sessionStoreStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			out := s.sessions[i]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("lock class session: %w", sql.ErrNoRows)
}

func (s *sessionStoreStub) InsertIfMissing(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) (bool, error) {
	if s.collideOnce {
		s.collideOnce = false
		return false, &pq.Error{Code: "23505"}
	}
	for _, existing := range s.sessions {
		if existing.ClassID == session.ClassID && existing.SessionDate.Equal(session.SessionDate) && existing.StartTime == session.StartTime {
			return false, nil
		}
	}
	s.seq++
	session.ID = fmt.Sprintf("session-%d", s.seq)
	s.sessions = append(s.sessions, *session)
	return true, nil
}

func (s *sessionStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if s.cancelled[id] > 0 {
		return fmt.Errorf("delete class session: %w", &pq.Error{Code: "23503"})
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *sessionStoreStub) CountActiveReservations(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	return s.active[sessionID], nil
}

func (s *sessionStoreStub) DeleteCancelledReservations(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int64, error) {
	n := s.cancelled[sessionID]
	delete(s.cancelled, sessionID)
	return int64(n), nil
}

type allocationCounterStub map[string]int

func (a allocationCounterStub) CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	return a[sessionID], nil
}

type materializerFixture struct {
	svc         *SessionMaterializerService
	patterns    *patternStoreStub
	sessions    *sessionStoreStub
	allocations allocationCounterStub
	events      *publisherStub
}

func newMaterializerFixture(t *testing.T, tx txProvider) *materializerFixture {
	t.Helper()
	f := &materializerFixture{
		patterns: &patternStoreStub{patterns: map[string]*models.SchedulePattern{
			"pattern-1": {
				ID:            "pattern-1",
				ClassID:       "class-1",
				Rule:          "FREQ=WEEKLY;BYDAY=SA;COUNT=4",
				StartDate:     mustDate(t, "2026-02-14"),
				StartTime:     "18:00",
				DurationHours: 2.5,
				Active:        true,
			},
		}},
		sessions:    &sessionStoreStub{active: map[string]int{}, cancelled: map[string]int{}},
		allocations: allocationCounterStub{},
		events:      &publisherStub{},
	}
	classes := classStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", StudioID: "studio-1", Name: "Wheel Throwing I", MaxStudents: 8},
	}}
	f.svc = NewSessionMaterializerService(f.patterns, classes, f.sessions, f.allocations, tx, nil, f.events, nil, nil, nil, SessionMaterializerConfig{})
	return f
}

func TestMaterializeIsIdempotent(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	expectTxs(mock, 2)
	f := newMaterializerFixture(t, tx)

	first, err := f.svc.Materialize(context.Background(), "pattern-1")
	require.NoError(t, err)
	assert.Equal(t, 4, first.Expanded)
	require.Len(t, first.Created, 4)
	assert.Equal(t, "2026-02-14", first.Created[0].SessionDate.Format("2006-01-02"))
	assert.Equal(t, "20:30", first.Created[0].EndTime)
	assert.Equal(t, 8, first.Created[0].MaxStudents)
	assert.Zero(t, first.Created[0].CurrentEnrollment)

	second, err := f.svc.Materialize(context.Background(), "pattern-1")
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, 4, second.Existing)
	assert.Len(t, f.sessions.sessions, 4)
	assert.Equal(t, 2, f.patterns.locks)
	assert.Equal(t, []string{messaging.RoutingSessionsMaterialized}, f.events.keys())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeUsesPatternCapacity(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	expectTxs(mock, 1)
	f := newMaterializerFixture(t, tx)
	override := 4
	f.patterns.patterns["pattern-1"].MaxStudents = &override

	result, err := f.svc.Materialize(context.Background(), "pattern-1")
	require.NoError(t, err)
	for _, session := range result.Created {
		assert.Equal(t, 4, session.MaxStudents)
	}
}

func TestMaterializeInactivePattern(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newMaterializerFixture(t, tx)
	f.patterns.patterns["pattern-1"].Active = false

	_, err := f.svc.Materialize(context.Background(), "pattern-1")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	assert.Empty(t, f.sessions.sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeRetriesAfterConcurrentInsert(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newMaterializerFixture(t, tx)
	f.sessions.collideOnce = true

	result, err := f.svc.Materialize(context.Background(), "pattern-1")
	require.NoError(t, err)
	assert.Len(t, result.Created, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeInvalidRule(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	f := newMaterializerFixture(t, tx)
	f.patterns.patterns["pattern-1"].Rule = "FREQ=WEEKLY;COUNT=3"

	_, err := f.svc.Materialize(context.Background(), "pattern-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidRule)
	assert.Empty(t, f.sessions.sessions)
}

func TestPreviewExpandsRule(t *testing.T) {
	f := newMaterializerFixture(t, nil)

	resp, err := f.svc.Preview(dto.ExpandPatternRequest{
		Rule:          "freq=daily;count=3;interval=2",
		StartDate:     "2026-03-01",
		StartTime:     "23:00",
		DurationHours: 2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Occurrences, 3)
	assert.Equal(t, "2026-03-01", resp.Occurrences[0].Date)
	assert.Equal(t, "2026-03-03", resp.Occurrences[1].Date)
	assert.Equal(t, "01:00", resp.Occurrences[0].EndTime)

	_, err = f.svc.Preview(dto.ExpandPatternRequest{Rule: "FREQ=DAILY", StartDate: "2026-03-01", StartTime: "10:00", DurationHours: 1})
	assert.ErrorIs(t, err, appErrors.ErrInvalidRule)

	_, err = f.svc.Preview(dto.ExpandPatternRequest{Rule: "FREQ=DAILY;COUNT=1", StartDate: "2026-03-01", StartTime: "10:00", DurationHours: 24})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPickSurvivorPrefersEnrollment(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	group := []models.ClassSession{
		{ID: "a", CurrentEnrollment: 0, CreatedAt: created},
		{ID: "b", CurrentEnrollment: 3, CreatedAt: created.Add(time.Hour)},
		{ID: "c", CurrentEnrollment: 0, CreatedAt: created.Add(2 * time.Hour)},
	}

	keep, rest := pickSurvivor(group)
	assert.Equal(t, "b", keep.ID)
	require.Len(t, rest, 2)
	assert.Equal(t, "a", rest[0].ID)
	assert.Equal(t, "c", rest[1].ID)
}

func TestPickSurvivorTieBreaks(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	keep, _ := pickSurvivor([]models.ClassSession{
		{ID: "a", CreatedAt: created.Add(time.Minute)},
		{ID: "b", CreatedAt: created},
	})
	assert.Equal(t, "b", keep.ID)

	keep, _ = pickSurvivor([]models.ClassSession{
		{ID: "z", CreatedAt: created},
		{ID: "m", CreatedAt: created},
	})
	assert.Equal(t, "m", keep.ID)
}

func TestCleanupDuplicatesKeepsBusiestAndProtectsReserved(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	expectTxs(mock, 2)
	f := newMaterializerFixture(t, tx)
	date := mustDate(t, "2026-02-14")
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pattern := strPtr("pattern-1")
	f.sessions.sessions = []models.ClassSession{
		{ID: "a", ClassID: "class-1", PatternID: pattern, SessionDate: date, StartTime: "18:00", CreatedAt: created},
		{ID: "b", ClassID: "class-1", PatternID: pattern, SessionDate: date, StartTime: "18:30", CurrentEnrollment: 3, CreatedAt: created},
		{ID: "c", ClassID: "class-1", PatternID: pattern, SessionDate: date, StartTime: "19:00", CreatedAt: created},
		{ID: "d", ClassID: "class-1", PatternID: pattern, SessionDate: date.AddDate(0, 0, 7), StartTime: "18:00", CreatedAt: created},
	}
	f.sessions.active["c"] = 1

	result, err := f.svc.CleanupDuplicates(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, result.Kept)
	assert.Equal(t, []string{"a"}, result.Deleted)
	require.Len(t, result.Protected, 1)
	assert.Equal(t, dto.ProtectedDuplicate{SessionID: "c", KeptSessionID: "b", ActiveReservations: 1}, result.Protected[0])

	remaining, _ := f.sessions.List(context.Background(), models.SessionFilter{ClassID: "class-1"})
	assert.Len(t, remaining, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupDuplicatesRemovesCancelledReservations(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	expectTxs(mock, 1)
	f := newMaterializerFixture(t, tx)
	date := mustDate(t, "2026-02-14")
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pattern := strPtr("pattern-1")
	f.sessions.sessions = []models.ClassSession{
		{ID: "keep", ClassID: "class-1", PatternID: pattern, SessionDate: date, StartTime: "18:00", CurrentEnrollment: 2, CreatedAt: created},
		{ID: "dup", ClassID: "class-1", PatternID: pattern, SessionDate: date, StartTime: "18:30", CreatedAt: created},
	}
	f.sessions.cancelled["dup"] = 2

	result, err := f.svc.CleanupDuplicates(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, result.Kept)
	assert.Equal(t, []string{"dup"}, result.Deleted)
	assert.Empty(t, result.Protected)
	assert.Empty(t, f.sessions.cancelled)
	assert.Len(t, f.sessions.sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionRemovesCancelledReservations(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	expectTxs(mock, 1)
	f := newMaterializerFixture(t, tx)
	f.sessions.sessions = []models.ClassSession{{ID: "cancelled-only", ClassID: "class-1"}}
	f.sessions.cancelled["cancelled-only"] = 3

	require.NoError(t, f.svc.DeleteSession(context.Background(), "cancelled-only"))
	assert.Empty(t, f.sessions.sessions)
	assert.Empty(t, f.sessions.cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionRefusesWhenInUse(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newMaterializerFixture(t, tx)
	f.sessions.sessions = []models.ClassSession{
		{ID: "reserved", ClassID: "class-1"},
		{ID: "allocated", ClassID: "class-1"},
		{ID: "free", ClassID: "class-1"},
	}
	f.sessions.active["reserved"] = 2
	f.allocations["allocated"] = 1

	err := f.svc.DeleteSession(context.Background(), "reserved")
	assert.ErrorIs(t, err, appErrors.ErrProtectedDeletion)
	var protected *ProtectedDeletionError
	require.ErrorAs(t, err, &protected)
	assert.Equal(t, 2, protected.ActiveReservations)

	err = f.svc.DeleteSession(context.Background(), "allocated")
	assert.ErrorIs(t, err, appErrors.ErrProtectedDeletion)

	require.NoError(t, f.svc.DeleteSession(context.Background(), "free"))
	assert.Len(t, f.sessions.sessions, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

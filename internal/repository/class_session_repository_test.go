package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

func newClassSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var sessionRowColumns = []string{"id", "class_id", "pattern_id", "class_step_id", "session_date", "start_time", "end_time", "max_students", "current_enrollment", "status", "resources_released_at", "created_at"}

func TestClassSessionRepositoryInsertIfMissing(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)

	patternID := "pattern-1"
	date := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_sessions")).
		WithArgs(sqlmock.AnyArg(), "class-1", &patternID, nil, date, "18:00", "20:30", 8, 0, models.SessionStatusScheduled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first := &models.ClassSession{ClassID: "class-1", PatternID: &patternID, SessionDate: date, StartTime: "18:00", EndTime: "20:30", MaxStudents: 8}
	created, err := repo.InsertIfMissing(context.Background(), nil, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	second := &models.ClassSession{ClassID: "class-1", PatternID: &patternID, SessionDate: date, StartTime: "18:00", EndTime: "20:30", MaxStudents: 8}
	created, err = repo.InsertIfMissing(context.Background(), nil, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSessionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("s-1", "class-1", nil, nil, from, "10:00", "12:00", 6, 2, "scheduled", nil, time.Now())

	mock.ExpectQuery("FROM class_sessions WHERE class_id = \\$1 AND session_date >= \\$2 AND session_date <= \\$3 ORDER BY session_date ASC").
		WithArgs("class-1", from, to).
		WillReturnRows(rows)

	sessions, err := repo.List(context.Background(), models.SessionFilter{ClassID: "class-1", From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].CurrentEnrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSessionRepositoryMarkReleasedOnlyOnce(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)
	at := time.Date(2026, 2, 13, 18, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_sessions SET resources_released_at = $2 WHERE id = $1 AND resources_released_at IS NULL")).
		WithArgs("s-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_sessions SET resources_released_at = $2")).
		WithArgs("s-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := repo.MarkReleased(context.Background(), nil, "s-1", at)
	require.NoError(t, err)
	assert.True(t, released)
	released, err = repo.MarkReleased(context.Background(), nil, "s-1", at)
	require.NoError(t, err)
	assert.False(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSessionRepositoryDecrementEnrollment(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET current_enrollment = GREATEST(current_enrollment - $2, 0)")).
		WithArgs("s-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DecrementEnrollment(context.Background(), nil, "s-1", 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSessionRepositoryCountActiveReservations(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reservations WHERE session_id = $1 AND status <> $2")).
		WithArgs("s-1", models.ReservationCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountActiveReservations(context.Background(), nil, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSessionRepositoryDeleteCancelledReservations(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reservations WHERE session_id = $1 AND status = $2")).
		WithArgs("s-1", models.ReservationCancelled).
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.DeleteCancelledReservations(context.Background(), nil, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSessionRepositoryListHoldsOnDate(t *testing.T) {
	db, mock, cleanup := newClassSessionRepoMock(t)
	defer cleanup()
	repo := NewClassSessionRepository(db)
	date := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	columns := append(append([]string{}, sessionRowColumns...), "studio_id", "reserve_full_capacity", "hold_entire_pool", "resource_release_hours")
	rows := sqlmock.NewRows(columns).
		AddRow("s-1", "class-1", "pattern-1", nil, date, "18:00", "20:00", 8, 3, "scheduled", nil, time.Now(), "studio-1", true, false, 48.0)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.studio_id = $1 AND s.session_date = $2 AND s.status = $3")).
		WithArgs("studio-1", date, models.SessionStatusScheduled).
		WillReturnRows(rows)

	holds, err := repo.ListHoldsOnDate(context.Background(), nil, "studio-1", date)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.True(t, holds[0].ReserveFullCapacity)
	require.NotNil(t, holds[0].ResourceReleaseHours)
	assert.Equal(t, 48.0, *holds[0].ResourceReleaseHours)
	assert.Equal(t, "studio-1", holds[0].StudioID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

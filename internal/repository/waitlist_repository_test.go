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

func newWaitlistRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWaitlistRepositoryLockQueueRequiresTransaction(t *testing.T) {
	db, _, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	_, err := repo.LockQueue(context.Background(), nil, "os-1", "wheel")
	assert.Error(t, err)
}

func TestWaitlistRepositoryLockQueueOrdersByPosition(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries WHERE session_id = $1 AND resource_id = $2 ORDER BY start_time ASC, end_time ASC, position ASC, created_at ASC, id ASC FOR UPDATE")).
		WithArgs("os-1", "wheel").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscription_id", "session_id", "resource_id", "start_time", "end_time", "quantity", "position", "created_at"}).
			AddRow("w-a", "sub-a", "os-1", "wheel", "10:00", "12:00", 1, 1, now).
			AddRow("w-b", "sub-b", "os-1", "wheel", "10:00", "12:00", 1, 2, now))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	entries, err := repo.LockQueue(context.Background(), tx, "os-1", "wheel")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, entries, 2)
	assert.Equal(t, "w-a", entries[0].ID)
	assert.Equal(t, 2, entries[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryInsertAndRenumber(t *testing.T) {
	db, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist_entries")).
		WithArgs(sqlmock.AnyArg(), "sub-a", "os-1", "wheel", "10:00", "12:00", 1, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ROW_NUMBER() OVER (PARTITION BY start_time, end_time ORDER BY position ASC")).
		WithArgs("os-1", "wheel").
		WillReturnResult(sqlmock.NewResult(0, 2))

	entry := &models.WaitlistEntry{SubscriptionID: "sub-a", SessionID: "os-1", ResourceID: "wheel", StartTime: "10:00", EndTime: "12:00", Quantity: 1, Position: 3}
	require.NoError(t, repo.Insert(context.Background(), nil, entry))
	assert.NotEmpty(t, entry.ID)
	require.NoError(t, repo.Renumber(context.Background(), nil, "os-1", "wheel"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

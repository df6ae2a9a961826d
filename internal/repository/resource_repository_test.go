package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResourceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestResourceRepositoryLockForUpdate(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM studio_resources WHERE id = ANY($1) ORDER BY id ASC FOR UPDATE")).
		WithArgs(pq.Array([]string{"kiln", "wheel"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "studio_id", "name", "total_quantity"}).
			AddRow("kiln", "studio-1", "Kiln", 2).
			AddRow("wheel", "studio-1", "Wheel", 10))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	resources, err := repo.LockForUpdate(context.Background(), tx, []string{"kiln", "wheel"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.Len(t, resources, 2)
	assert.Equal(t, 10, resources[1].TotalQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryListRequirements(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT class_id, resource_id, quantity_per_student FROM resource_requirements WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "resource_id", "quantity_per_student"}).
			AddRow("class-1", "wheel", 1).
			AddRow("class-1", "clay", 2))

	requirements, err := repo.ListRequirements(context.Background(), nil, "class-1")
	require.NoError(t, err)
	require.Len(t, requirements, 2)
	assert.Equal(t, 2, requirements[1].QuantityPerStudent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

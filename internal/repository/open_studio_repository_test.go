package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

func TestOpenStudioRepositoryListConfirmedBookings(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()
	repo := NewOpenStudioRepository(db)

	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM open_studio_bookings WHERE open_studio_session_id = $1 AND status = $2")).
		WithArgs("os-1", "CONFIRMED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "open_studio_session_id", "subscription_id", "resource_id", "start_time", "end_time", "quantity", "status", "waitlist_entry_id", "created_at"}).
			AddRow("b-1", "os-1", "sub-1", "wheel", "10:00", "12:00", 1, "CONFIRMED", nil, created).
			AddRow("b-2", "os-1", "sub-2", "wheel", "11:00", "13:00", 2, "CONFIRMED", "wl-4", created))

	bookings, err := repo.ListConfirmedBookings(context.Background(), nil, "os-1")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Nil(t, bookings[0].WaitlistEntryID)
	require.NotNil(t, bookings[1].WaitlistEntryID)
	assert.Equal(t, "wl-4", *bookings[1].WaitlistEntryID)
	assert.Equal(t, models.BookingConfirmed, bookings[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenStudioRepositoryInsertBookingFillsDefaults(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()
	repo := NewOpenStudioRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO open_studio_bookings")).
		WithArgs(sqlmock.AnyArg(), "os-1", "sub-1", "kiln", "14:00", "16:00", 1, "CONFIRMED", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	booking := &models.OpenStudioBooking{OpenStudioSessionID: "os-1", SubscriptionID: "sub-1", ResourceID: "kiln", StartTime: "14:00", EndTime: "16:00", Quantity: 1}
	require.NoError(t, repo.InsertBooking(context.Background(), nil, booking))
	assert.NotEmpty(t, booking.ID)
	assert.False(t, booking.CreatedAt.IsZero())
	assert.Equal(t, models.BookingConfirmed, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

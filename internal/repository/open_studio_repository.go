package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// OpenStudioRepository persists open-studio sessions and their bookings.
type OpenStudioRepository struct {
	db *sqlx.DB
}

// NewOpenStudioRepository constructs the repository.
func NewOpenStudioRepository(db *sqlx.DB) *OpenStudioRepository {
	return &OpenStudioRepository{db: db}
}

func (r *OpenStudioRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const openStudioColumns = `id, studio_id, session_date, start_time, end_time, status`

const bookingColumns = `id, open_studio_session_id, subscription_id, resource_id, start_time, end_time, quantity, status, waitlist_entry_id, created_at`

// FindSession fetches an open-studio session.
func (r *OpenStudioRepository) FindSession(ctx context.Context, exec sqlx.ExtContext, id string) (*models.OpenStudioSession, error) {
	query := `SELECT ` + openStudioColumns + ` FROM open_studio_sessions WHERE id = $1`
	var session models.OpenStudioSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, fmt.Errorf("find open studio session: %w", err)
	}
	return &session, nil
}

// ListSessionsOnDate returns the open-studio sessions of a studio on a calendar date.
func (r *OpenStudioRepository) ListSessionsOnDate(ctx context.Context, studioID string, date time.Time) ([]models.OpenStudioSession, error) {
	query := `SELECT ` + openStudioColumns + ` FROM open_studio_sessions WHERE studio_id = $1 AND session_date = $2 ORDER BY start_time ASC, id ASC`
	var sessions []models.OpenStudioSession
	if err := r.db.SelectContext(ctx, &sessions, query, studioID, date); err != nil {
		return nil, fmt.Errorf("list open studio sessions: %w", err)
	}
	return sessions, nil
}

// ListConfirmedBookings returns confirmed bookings of an open-studio session.
func (r *OpenStudioRepository) ListConfirmedBookings(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.OpenStudioBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM open_studio_bookings WHERE open_studio_session_id = $1 AND status = $2 ORDER BY start_time ASC, id ASC`
	var bookings []models.OpenStudioBooking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, query, sessionID, models.BookingConfirmed); err != nil {
		return nil, fmt.Errorf("list open studio bookings: %w", err)
	}
	return bookings, nil
}

// InsertBooking writes a booking.
func (r *OpenStudioRepository) InsertBooking(ctx context.Context, exec sqlx.ExtContext, booking *models.OpenStudioBooking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if booking.Status == "" {
		booking.Status = models.BookingConfirmed
	}
	const query = `
INSERT INTO open_studio_bookings (id, open_studio_session_id, subscription_id, resource_id, start_time, end_time, quantity, status, waitlist_entry_id, created_at)
VALUES (:id, :open_studio_session_id, :subscription_id, :resource_id, :start_time, :end_time, :quantity, :status, :waitlist_entry_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, booking); err != nil {
		return fmt.Errorf("insert open studio booking: %w", err)
	}
	return nil
}

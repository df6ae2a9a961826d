package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// ReservationRepository reads and updates session reservations.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs the repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockByID fetches a reservation and locks it for the rest of the transaction.
func (r *ReservationRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error) {
	const query = `SELECT id, registration_id, session_id, status FROM reservations WHERE id = $1 FOR UPDATE`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, r.exec(exec), &reservation, query, id); err != nil {
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	return &reservation, nil
}

// LockActiveForRegistration locks the registration's non-cancelled reservation on a session.
// It returns sql.ErrNoRows, wrapped, when there is none.
func (r *ReservationRepository) LockActiveForRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) (*models.Reservation, error) {
	const query = `SELECT id, registration_id, session_id, status FROM reservations
WHERE session_id = $1 AND registration_id = $2 AND status <> $3
ORDER BY id ASC LIMIT 1 FOR UPDATE`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, r.exec(exec), &reservation, query, sessionID, registrationID, models.ReservationCancelled); err != nil {
		return nil, fmt.Errorf("lock active reservation: %w", err)
	}
	return &reservation, nil
}

// UpdateStatus changes a reservation's status.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ReservationStatus) error {
	if _, err := r.exec(exec).ExecContext(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return nil
}

// ListBackfillCandidates returns active reservations on scheduled sessions whose registration has no allocation
// for that session, ordered by reservation id and starting after afterID.
func (r *ReservationRepository) ListBackfillCandidates(ctx context.Context, afterID string, limit int) ([]models.BackfillCandidate, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `
SELECT rv.id AS reservation_id, rv.registration_id, rv.session_id, s.class_id
FROM reservations rv
JOIN class_sessions s ON s.id = rv.session_id
WHERE rv.status <> $1
  AND s.status = $2
  AND NOT EXISTS (
    SELECT 1 FROM resource_allocations a
    WHERE a.session_id = rv.session_id AND a.registration_id = rv.registration_id
  )
  AND rv.id > $3
ORDER BY rv.id ASC
LIMIT $4`
	var candidates []models.BackfillCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, models.ReservationCancelled, models.SessionStatusScheduled, afterID, limit); err != nil {
		return nil, fmt.Errorf("list backfill candidates: %w", err)
	}
	return candidates, nil
}

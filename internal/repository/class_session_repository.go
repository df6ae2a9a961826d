package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// ClassSessionRepository persists concrete class sessions.
type ClassSessionRepository struct {
	db *sqlx.DB
}

// NewClassSessionRepository constructs the repository.
func NewClassSessionRepository(db *sqlx.DB) *ClassSessionRepository {
	return &ClassSessionRepository{db: db}
}

func (r *ClassSessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const sessionColumns = `id, class_id, pattern_id, class_step_id, session_date, start_time, end_time, max_students,
current_enrollment, status, resources_released_at, created_at`

const holdSelect = `SELECT s.id, s.class_id, s.pattern_id, s.class_step_id, s.session_date, s.start_time, s.end_time,
s.max_students, s.current_enrollment, s.status, s.resources_released_at, s.created_at, c.studio_id,
COALESCE(p.reserve_full_capacity, FALSE) AS reserve_full_capacity,
COALESCE(p.hold_entire_pool, FALSE) AS hold_entire_pool,
p.resource_release_hours
FROM class_sessions s
JOIN classes c ON c.id = s.class_id
LEFT JOIN schedule_patterns p ON p.id = s.pattern_id`

// FindByID fetches a session by ID.
func (r *ClassSessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1`
	var session models.ClassSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, fmt.Errorf("find class session: %w", err)
	}
	return &session, nil
}

// FindHold fetches a session together with its pattern hold settings.
func (r *ClassSessionRepository) FindHold(ctx context.Context, id string) (*models.SessionHold, error) {
	var hold models.SessionHold
	if err := r.db.GetContext(ctx, &hold, holdSelect+` WHERE s.id = $1`, id); err != nil {
		return nil, fmt.Errorf("find session hold: %w", err)
	}
	return &hold, nil
}

// List returns sessions matching the filter ordered by date and start time.
func (r *ClassSessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error) {
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.PatternID != "" {
		conditions = append(conditions, fmt.Sprintf("pattern_id = $%d", len(args)+1))
		args = append(args, filter.PatternID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	query := `SELECT ` + sessionColumns + ` FROM class_sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY session_date ASC, start_time ASC, created_at ASC, id ASC"

	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// InsertIfMissing creates the session unless one already exists for the class, date and start time.
// It reports whether a row was written.
func (r *ClassSessionRepository) InsertIfMissing(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) (bool, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	const query = `
INSERT INTO class_sessions (id, class_id, pattern_id, class_step_id, session_date, start_time, end_time, max_students, current_enrollment, status, created_at)
VALUES (:id, :class_id, :pattern_id, :class_step_id, :session_date, :start_time, :end_time, :max_students, :current_enrollment, :status, :created_at)
ON CONFLICT (class_id, session_date, start_time) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session)
	if err != nil {
		return false, fmt.Errorf("insert class session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert class session: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a session.
func (r *ClassSessionRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM class_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class session: %w", err)
	}
	return nil
}

// LockByID fetches a session and locks its row for the rest of the transaction.
func (r *ClassSessionRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1 FOR UPDATE`
	var session models.ClassSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, fmt.Errorf("lock class session: %w", err)
	}
	return &session, nil
}

// UpdateStatus changes the session status.
func (r *ClassSessionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error {
	if _, err := r.exec(exec).ExecContext(ctx, `UPDATE class_sessions SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("update class session status: %w", err)
	}
	return nil
}

// MarkReleased stamps the time the session's resource hold was released. Already released sessions are left as is.
func (r *ClassSessionRepository) MarkReleased(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	res, err := r.exec(exec).ExecContext(ctx, `UPDATE class_sessions SET resources_released_at = $2 WHERE id = $1 AND resources_released_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark class session released: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark class session released: %w", err)
	}
	return affected > 0, nil
}

// DecrementEnrollment lowers current enrollment by n, never below zero.
func (r *ClassSessionRepository) DecrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string, n int) error {
	const query = `UPDATE class_sessions SET current_enrollment = GREATEST(current_enrollment - $2, 0) WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, n); err != nil {
		return fmt.Errorf("decrement class session enrollment: %w", err)
	}
	return nil
}

// CountActiveReservations counts reservations on the session that are not cancelled.
func (r *ClassSessionRepository) CountActiveReservations(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM reservations WHERE session_id = $1 AND status <> $2`
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sessionID, models.ReservationCancelled); err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return count, nil
}

// DeleteCancelledReservations removes the cancelled reservations of a session so the session row can be deleted.
func (r *ClassSessionRepository) DeleteCancelledReservations(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM reservations WHERE session_id = $1 AND status = $2`, sessionID, models.ReservationCancelled)
	if err != nil {
		return 0, fmt.Errorf("delete cancelled reservations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cancelled reservations: %w", err)
	}
	return n, nil
}

// ListHoldsOnDate returns scheduled class sessions of a studio on a calendar date with their hold settings.
func (r *ClassSessionRepository) ListHoldsOnDate(ctx context.Context, exec sqlx.ExtContext, studioID string, date time.Time) ([]models.SessionHold, error) {
	query := holdSelect + ` WHERE c.studio_id = $1 AND s.session_date = $2 AND s.status = $3 ORDER BY s.start_time ASC, s.id ASC`
	var holds []models.SessionHold
	if err := sqlx.SelectContext(ctx, r.exec(exec), &holds, query, studioID, date, models.SessionStatusScheduled); err != nil {
		return nil, fmt.Errorf("list session holds: %w", err)
	}
	return holds, nil
}

// ListReleasedBetween returns sessions whose hold was already released and that fall on a day in [from, through].
func (r *ClassSessionRepository) ListReleasedBetween(ctx context.Context, from, through time.Time, limit int) ([]models.SessionHold, error) {
	if limit <= 0 {
		limit = 500
	}
	query := holdSelect + ` WHERE s.resources_released_at IS NOT NULL AND s.session_date >= $1 AND s.session_date <= $2
ORDER BY s.session_date ASC, s.start_time ASC, s.id ASC LIMIT $3`
	var holds []models.SessionHold
	if err := r.db.SelectContext(ctx, &holds, query, from, through, limit); err != nil {
		return nil, fmt.Errorf("list released sessions: %w", err)
	}
	return holds, nil
}

// ListUnreleasedBefore returns scheduled, unreleased sessions dated on or before the given day.
// Callers decide per session whether its release time has passed.
func (r *ClassSessionRepository) ListUnreleasedBefore(ctx context.Context, through time.Time, limit int) ([]models.SessionHold, error) {
	if limit <= 0 {
		limit = 500
	}
	query := holdSelect + ` WHERE s.status = $1 AND s.resources_released_at IS NULL AND s.session_date <= $2
ORDER BY s.session_date ASC, s.start_time ASC, s.id ASC LIMIT $3`
	var holds []models.SessionHold
	if err := r.db.SelectContext(ctx, &holds, query, models.SessionStatusScheduled, through, limit); err != nil {
		return nil, fmt.Errorf("list unreleased sessions: %w", err)
	}
	return holds, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// WaitlistRepository persists FIFO waitlist queues per open-studio session, resource and time slot.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const waitlistColumns = `id, subscription_id, session_id, resource_id, start_time, end_time, quantity, position, created_at`

// LockQueue locks every slot queue of a resource, grouped by slot and ordered by position.
func (r *WaitlistRepository) LockQueue(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) ([]models.WaitlistEntry, error) {
	if exec == nil {
		return nil, fmt.Errorf("lock waitlist queue: transaction required")
	}
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE session_id = $1 AND resource_id = $2 ORDER BY start_time ASC, end_time ASC, position ASC, created_at ASC, id ASC FOR UPDATE`
	var entries []models.WaitlistEntry
	if err := sqlx.SelectContext(ctx, exec, &entries, query, sessionID, resourceID); err != nil {
		return nil, fmt.Errorf("lock waitlist queue: %w", err)
	}
	return entries, nil
}

// LockQueueKey serialises writers on a queue even while it is empty.
func (r *WaitlistRepository) LockQueueKey(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error {
	if exec == nil {
		return fmt.Errorf("lock waitlist queue: transaction required")
	}
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "waitlist:"+sessionID+":"+resourceID); err != nil {
		return fmt.Errorf("lock waitlist queue: %w", err)
	}
	return nil
}

// FindByID fetches a waitlist entry.
func (r *WaitlistRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`
	var entry models.WaitlistEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, id); err != nil {
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &entry, nil
}

// Insert writes a new entry.
func (r *WaitlistRepository) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO waitlist_entries (id, subscription_id, session_id, resource_id, start_time, end_time, quantity, position, created_at)
VALUES (:id, :subscription_id, :session_id, :resource_id, :start_time, :end_time, :quantity, :position, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *WaitlistRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	return nil
}

// Renumber rewrites positions of each slot queue of a resource to 1..n preserving order.
func (r *WaitlistRepository) Renumber(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error {
	const query = `
UPDATE waitlist_entries w SET position = ranked.rn
FROM (
  SELECT id, ROW_NUMBER() OVER (PARTITION BY start_time, end_time ORDER BY position ASC, created_at ASC, id ASC) AS rn
  FROM waitlist_entries WHERE session_id = $1 AND resource_id = $2
) ranked
WHERE w.id = ranked.id AND w.position <> ranked.rn`
	if _, err := r.exec(exec).ExecContext(ctx, query, sessionID, resourceID); err != nil {
		return fmt.Errorf("renumber waitlist queue: %w", err)
	}
	return nil
}

// ListQueues returns the distinct non-empty queues for the given open-studio sessions.
func (r *WaitlistRepository) ListQueues(ctx context.Context, sessionIDs []string) ([]models.WaitlistQueue, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT session_id, resource_id FROM waitlist_entries WHERE session_id = ANY($1) ORDER BY session_id ASC, resource_id ASC`
	var queues []models.WaitlistQueue
	if err := r.db.SelectContext(ctx, &queues, query, pq.Array(sessionIDs)); err != nil {
		return nil, fmt.Errorf("list waitlist queues: %w", err)
	}
	return queues, nil
}

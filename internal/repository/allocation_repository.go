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

// AllocationRepository is the ledger of resource units granted to registrations per session.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs the repository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const allocationColumns = `id, session_id, resource_id, registration_id, quantity, created_at`

// ListBySession returns every allocation of a session.
func (r *AllocationRepository) ListBySession(ctx context.Context, sessionID string) ([]models.ResourceAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM resource_allocations WHERE session_id = $1 ORDER BY resource_id ASC, created_at ASC, id ASC`
	var allocations []models.ResourceAllocation
	if err := r.db.SelectContext(ctx, &allocations, query, sessionID); err != nil {
		return nil, fmt.Errorf("list resource allocations: %w", err)
	}
	return allocations, nil
}

// ListByRegistration returns the allocations a registration holds for a session.
func (r *AllocationRepository) ListByRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) ([]models.ResourceAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM resource_allocations WHERE session_id = $1 AND registration_id = $2 ORDER BY resource_id ASC`
	var allocations []models.ResourceAllocation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &allocations, query, sessionID, registrationID); err != nil {
		return nil, fmt.Errorf("list registration allocations: %w", err)
	}
	return allocations, nil
}

// SumBySession totals allocated units per resource for a session.
func (r *AllocationRepository) SumBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, resourceIDs []string) (map[string]int, error) {
	const query = `SELECT session_id, resource_id, COALESCE(SUM(quantity), 0) AS allocated
FROM resource_allocations WHERE session_id = $1 AND resource_id = ANY($2) GROUP BY session_id, resource_id`
	var usage []models.ResourceUsage
	if err := sqlx.SelectContext(ctx, r.exec(exec), &usage, query, sessionID, pq.Array(resourceIDs)); err != nil {
		return nil, fmt.Errorf("sum resource allocations: %w", err)
	}
	totals := make(map[string]int, len(usage))
	for _, u := range usage {
		totals[u.ResourceID] = u.Allocated
	}
	return totals, nil
}

// UsageForSessions totals allocated units per session and resource.
func (r *AllocationRepository) UsageForSessions(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string) ([]models.ResourceUsage, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT session_id, resource_id, COALESCE(SUM(quantity), 0) AS allocated
FROM resource_allocations WHERE session_id = ANY($1) GROUP BY session_id, resource_id ORDER BY session_id ASC, resource_id ASC`
	var usage []models.ResourceUsage
	if err := sqlx.SelectContext(ctx, r.exec(exec), &usage, query, pq.Array(sessionIDs)); err != nil {
		return nil, fmt.Errorf("sum session allocations: %w", err)
	}
	return usage, nil
}

// InsertBatch writes allocation rows.
func (r *AllocationRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, allocations []models.ResourceAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	const query = `
INSERT INTO resource_allocations (id, session_id, resource_id, registration_id, quantity, created_at)
VALUES (:id, :session_id, :resource_id, :registration_id, :quantity, :created_at)`
	for i := range allocations {
		allocation := &allocations[i]
		if allocation.ID == "" {
			allocation.ID = uuid.NewString()
		}
		if allocation.CreatedAt.IsZero() {
			allocation.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, allocation); err != nil {
			return fmt.Errorf("insert resource allocation: %w", err)
		}
	}
	return nil
}

// DeleteByRegistration removes a registration's allocations for a session and returns the number removed.
func (r *AllocationRepository) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, sessionID, registrationID string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM resource_allocations WHERE session_id = $1 AND registration_id = $2`, sessionID, registrationID)
	if err != nil {
		return 0, fmt.Errorf("delete resource allocations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete resource allocations: %w", err)
	}
	return affected, nil
}

// DeleteBySession removes every allocation of a session.
func (r *AllocationRepository) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM resource_allocations WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session allocations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete session allocations: %w", err)
	}
	return affected, nil
}

// CountBySession counts allocation rows held on a session.
func (r *AllocationRepository) CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, `SELECT COUNT(*) FROM resource_allocations WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("count session allocations: %w", err)
	}
	return count, nil
}

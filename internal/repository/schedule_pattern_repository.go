package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// SchedulePatternRepository reads recurring class schedule patterns.
type SchedulePatternRepository struct {
	db *sqlx.DB
}

// NewSchedulePatternRepository constructs the repository.
func NewSchedulePatternRepository(db *sqlx.DB) *SchedulePatternRepository {
	return &SchedulePatternRepository{db: db}
}

const patternColumns = `id, class_id, class_step_id, rule, start_date, start_time, duration_hours, max_students, active,
reserve_full_capacity, hold_entire_pool, resource_release_hours, created_at, updated_at`

// FindByID fetches a pattern by ID.
func (r *SchedulePatternRepository) FindByID(ctx context.Context, id string) (*models.SchedulePattern, error) {
	query := `SELECT ` + patternColumns + ` FROM schedule_patterns WHERE id = $1`
	var pattern models.SchedulePattern
	if err := r.db.GetContext(ctx, &pattern, query, id); err != nil {
		return nil, fmt.Errorf("find schedule pattern: %w", err)
	}
	return &pattern, nil
}

// LockForMaterialization takes a transaction scoped advisory lock keyed by pattern ID.
func (r *SchedulePatternRepository) LockForMaterialization(ctx context.Context, exec sqlx.ExtContext, patternID string) error {
	if exec == nil {
		return fmt.Errorf("lock schedule pattern: transaction required")
	}
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "pattern:"+patternID); err != nil {
		return fmt.Errorf("lock schedule pattern: %w", err)
	}
	return nil
}

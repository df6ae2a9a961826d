package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// ResourceRepository reads studio resource pools and class requirements.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a resource.
func (r *ResourceRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudioResource, error) {
	const query = `SELECT id, studio_id, name, total_quantity FROM studio_resources WHERE id = $1`
	var resource models.StudioResource
	if err := sqlx.GetContext(ctx, r.exec(exec), &resource, query, id); err != nil {
		return nil, fmt.Errorf("find studio resource: %w", err)
	}
	return &resource, nil
}

// ListByStudio returns every resource pool of a studio.
func (r *ResourceRepository) ListByStudio(ctx context.Context, exec sqlx.ExtContext, studioID string) ([]models.StudioResource, error) {
	const query = `SELECT id, studio_id, name, total_quantity FROM studio_resources WHERE studio_id = $1 ORDER BY name ASC, id ASC`
	var resources []models.StudioResource
	if err := sqlx.SelectContext(ctx, r.exec(exec), &resources, query, studioID); err != nil {
		return nil, fmt.Errorf("list studio resources: %w", err)
	}
	return resources, nil
}

// LockForUpdate locks the given resource rows in ID order so concurrent allocators queue behind each other.
func (r *ResourceRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.StudioResource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if exec == nil {
		return nil, fmt.Errorf("lock studio resources: transaction required")
	}
	const query = `SELECT id, studio_id, name, total_quantity FROM studio_resources WHERE id = ANY($1) ORDER BY id ASC FOR UPDATE`
	var resources []models.StudioResource
	if err := sqlx.SelectContext(ctx, exec, &resources, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock studio resources: %w", err)
	}
	return resources, nil
}

// ListRequirements returns the per-student resource requirements of a class.
func (r *ResourceRepository) ListRequirements(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.ResourceRequirement, error) {
	const query = `SELECT class_id, resource_id, quantity_per_student FROM resource_requirements WHERE class_id = $1 ORDER BY resource_id ASC`
	var requirements []models.ResourceRequirement
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requirements, query, classID); err != nil {
		return nil, fmt.Errorf("list resource requirements: %w", err)
	}
	return requirements, nil
}

// ListRequirementsForClasses returns requirements for several classes at once.
func (r *ResourceRepository) ListRequirementsForClasses(ctx context.Context, exec sqlx.ExtContext, classIDs []string) ([]models.ResourceRequirement, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT class_id, resource_id, quantity_per_student FROM resource_requirements WHERE class_id = ANY($1) ORDER BY class_id ASC, resource_id ASC`
	var requirements []models.ResourceRequirement
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requirements, query, pq.Array(classIDs)); err != nil {
		return nil, fmt.Errorf("list resource requirements: %w", err)
	}
	return requirements, nil
}

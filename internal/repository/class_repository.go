package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// ClassRepository reads classes and their registrations.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a class by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, studio_id, name, max_students, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// FindRegistration fetches a registration by ID.
func (r *ClassRepository) FindRegistration(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	const query = `SELECT id, class_id, subscription_id, guest_count, created_at FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := sqlx.GetContext(ctx, r.exec(exec), &registration, query, id); err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &registration, nil
}

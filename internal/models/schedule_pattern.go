package models

import "time"

// SchedulePattern is an admin-configured recurrence producing class sessions.
type SchedulePattern struct {
	ID                   string    `db:"id" json:"id"`
	ClassID              string    `db:"class_id" json:"class_id"`
	ClassStepID          *string   `db:"class_step_id" json:"class_step_id,omitempty"`
	Rule                 string    `db:"rule" json:"rule"`
	StartDate            time.Time `db:"start_date" json:"start_date"`
	StartTime            string    `db:"start_time" json:"start_time"`
	DurationHours        float64   `db:"duration_hours" json:"duration_hours"`
	MaxStudents          *int      `db:"max_students" json:"max_students,omitempty"`
	Active               bool      `db:"active" json:"active"`
	ReserveFullCapacity  bool      `db:"reserve_full_capacity" json:"reserve_full_capacity"`
	HoldEntirePool       bool      `db:"hold_entire_pool" json:"hold_entire_pool"`
	ResourceReleaseHours float64   `db:"resource_release_hours" json:"resource_release_hours"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

package models

import "time"

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusCompleted SessionStatus = "completed"
)

// ClassSession is one concrete occurrence of a class.
type ClassSession struct {
	ID                  string        `db:"id" json:"id"`
	ClassID             string        `db:"class_id" json:"class_id"`
	PatternID           *string       `db:"pattern_id" json:"pattern_id,omitempty"`
	ClassStepID         *string       `db:"class_step_id" json:"class_step_id,omitempty"`
	SessionDate         time.Time     `db:"session_date" json:"session_date"`
	StartTime           string        `db:"start_time" json:"start_time"`
	EndTime             string        `db:"end_time" json:"end_time"`
	MaxStudents         int           `db:"max_students" json:"max_students"`
	CurrentEnrollment   int           `db:"current_enrollment" json:"current_enrollment"`
	Status              SessionStatus `db:"status" json:"status"`
	ResourcesReleasedAt *time.Time    `db:"resources_released_at" json:"resources_released_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
}

// SessionHold is a class session joined with the pattern settings that govern its resource hold.
type SessionHold struct {
	ClassSession
	StudioID             string   `db:"studio_id" json:"studio_id"`
	ReserveFullCapacity  bool     `db:"reserve_full_capacity" json:"reserve_full_capacity"`
	HoldEntirePool       bool     `db:"hold_entire_pool" json:"hold_entire_pool"`
	ResourceReleaseHours *float64 `db:"resource_release_hours" json:"resource_release_hours,omitempty"`
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	ClassID   string
	PatternID string
	From      *time.Time
	To        *time.Time
	Status    SessionStatus
}

// HoldState describes where a class session's resource hold sits in its lifecycle.
type HoldState string

const (
	HoldStateHeld   HoldState = "HELD_BY_CLASS"
	HoldStateOpen   HoldState = "OPEN"
	HoldStateBooked HoldState = "BOOKED"
)

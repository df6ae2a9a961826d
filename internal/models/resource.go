package models

import "time"

// StudioResource is a finite shared asset pool such as wheels or kilns.
type StudioResource struct {
	ID            string `db:"id" json:"id"`
	StudioID      string `db:"studio_id" json:"studio_id"`
	Name          string `db:"name" json:"name"`
	TotalQuantity int    `db:"total_quantity" json:"total_quantity"`
}

// ResourceRequirement declares units of a resource each student of a class needs.
type ResourceRequirement struct {
	ClassID            string `db:"class_id" json:"class_id"`
	ResourceID         string `db:"resource_id" json:"resource_id"`
	QuantityPerStudent int    `db:"quantity_per_student" json:"quantity_per_student"`
}

// ResourceQuantity is a resolved demand for one resource.
type ResourceQuantity struct {
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
}

// ResourceAllocation grants units of a resource to a registration for a session.
type ResourceAllocation struct {
	ID             string    `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	ResourceID     string    `db:"resource_id" json:"resource_id"`
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	Quantity       int       `db:"quantity" json:"quantity"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ResourceUsage aggregates allocated units of one resource for a session.
type ResourceUsage struct {
	SessionID  string `db:"session_id" json:"session_id"`
	ResourceID string `db:"resource_id" json:"resource_id"`
	Allocated  int    `db:"allocated" json:"allocated"`
}

package models

import "time"

// Class is a bookable studio class offering.
type Class struct {
	ID          string    `db:"id" json:"id"`
	StudioID    string    `db:"studio_id" json:"studio_id"`
	Name        string    `db:"name" json:"name"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Registration is a subscriber's sign-up for a class, possibly bringing guests.
type Registration struct {
	ID             string    `db:"id" json:"id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	GuestCount     int       `db:"guest_count" json:"guest_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Participants returns the number of people the registration covers, at least one.
func (r Registration) Participants() int {
	if r.GuestCount < 1 {
		return 1
	}
	return r.GuestCount
}

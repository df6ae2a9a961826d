package models

import "time"

// OpenStudioSession is a block of time where subscribers book resources directly.
type OpenStudioSession struct {
	ID          string    `db:"id" json:"id"`
	StudioID    string    `db:"studio_id" json:"studio_id"`
	SessionDate time.Time `db:"session_date" json:"session_date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	Status      string    `db:"status" json:"status"`
}

// BookingStatus is the state of an open-studio booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// OpenStudioBooking reserves units of a resource for a slice of an open-studio session.
type OpenStudioBooking struct {
	ID                  string        `db:"id" json:"id"`
	OpenStudioSessionID string        `db:"open_studio_session_id" json:"open_studio_session_id"`
	SubscriptionID      string        `db:"subscription_id" json:"subscription_id"`
	ResourceID          string        `db:"resource_id" json:"resource_id"`
	StartTime           string        `db:"start_time" json:"start_time"`
	EndTime             string        `db:"end_time" json:"end_time"`
	Quantity            int           `db:"quantity" json:"quantity"`
	Status              BookingStatus `db:"status" json:"status"`
	WaitlistEntryID     *string       `db:"waitlist_entry_id" json:"waitlist_entry_id,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
}

// ResourceAvailability is the computed free capacity of one resource in an open-studio window.
type ResourceAvailability struct {
	ResourceID    string     `json:"resource_id"`
	ResourceName  string     `json:"resource_name"`
	Total         int        `json:"total"`
	HeldByClasses int        `json:"held_by_classes"`
	Booked        int        `json:"booked"`
	Available     int        `json:"available"`
	HeldSlots     []HeldSlot `json:"held_slots,omitempty"`
}

// HeldSlot explains a class session window constraining availability.
type HeldSlot struct {
	SessionID string `json:"session_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Quantity  int    `json:"quantity"`
}

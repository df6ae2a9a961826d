package models

import "time"

// WaitlistEntry queues a subscriber for a resource slot in an open-studio session.
type WaitlistEntry struct {
	ID             string    `db:"id" json:"id"`
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	ResourceID     string    `db:"resource_id" json:"resource_id"`
	StartTime      string    `db:"start_time" json:"start_time"`
	EndTime        string    `db:"end_time" json:"end_time"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Position       int       `db:"position" json:"position"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// WaitlistQueue identifies one FIFO queue.
type WaitlistQueue struct {
	SessionID  string `db:"session_id" json:"session_id"`
	ResourceID string `db:"resource_id" json:"resource_id"`
}

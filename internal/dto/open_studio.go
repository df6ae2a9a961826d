package dto

import (
	"time"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// AvailabilityResponse lists free capacity per resource for an open-studio session.
type AvailabilityResponse struct {
	OpenStudioSessionID string                        `json:"openStudioSessionId"`
	Date                string                        `json:"date"`
	StartTime           string                        `json:"startTime"`
	EndTime             string                        `json:"endTime"`
	GeneratedAt         time.Time                     `json:"generatedAt"`
	Resources           []models.ResourceAvailability `json:"resources"`
}

// JoinWaitlistRequest queues a subscriber for a resource slot.
type JoinWaitlistRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	ResourceID     string `json:"resourceId" validate:"required"`
	StartTime      string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime        string `json:"endTime" validate:"required,datetime=15:04"`
	Quantity       int    `json:"quantity" validate:"omitempty,min=1,max=50"`
}

// JoinWaitlistResponse returns the created entry and its queue position.
type JoinWaitlistResponse struct {
	Position int                  `json:"position"`
	Entry    models.WaitlistEntry `json:"entry"`
}

// PromotionResult reports the outcome of one waitlist promotion attempt.
type PromotionResult struct {
	SessionID  string                    `json:"sessionId"`
	ResourceID string                    `json:"resourceId"`
	Promoted   bool                      `json:"promoted"`
	Reason     string                    `json:"reason,omitempty"`
	Entry      *models.WaitlistEntry     `json:"entry,omitempty"`
	Booking    *models.OpenStudioBooking `json:"booking,omitempty"`
}

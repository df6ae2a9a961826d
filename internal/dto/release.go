package dto

import (
	"time"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

// ReleaseTimeResponse describes when a session's resource hold lapses.
type ReleaseTimeResponse struct {
	SessionID    string           `json:"sessionId"`
	SessionStart time.Time        `json:"sessionStart"`
	ReleaseHours float64          `json:"releaseHours"`
	ReleaseTime  time.Time        `json:"releaseTime"`
	State        models.HoldState `json:"state"`
}

// CancelSessionResult reports a class session cancellation.
type CancelSessionResult struct {
	SessionID           string            `json:"sessionId"`
	ReleasedAllocations int64             `json:"releasedAllocations"`
	AlreadyCancelled    bool              `json:"alreadyCancelled"`
	Promotions          []PromotionResult `json:"promotions"`
}

// CancelReservationResult reports a reservation cancellation.
type CancelReservationResult struct {
	ReservationID       string            `json:"reservationId"`
	SessionID           string            `json:"sessionId"`
	ReleasedAllocations int64             `json:"releasedAllocations"`
	AlreadyCancelled    bool              `json:"alreadyCancelled"`
	Promotions          []PromotionResult `json:"promotions"`
}

// ReleaseSweepResult summarises a scheduled release sweep.
type ReleaseSweepResult struct {
	Checked    int               `json:"checked"`
	Released   []string          `json:"released"`
	Revisited  int               `json:"revisited"`
	Promotions []PromotionResult `json:"promotions"`
}

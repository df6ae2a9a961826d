package dto

import "github.com/noah-isme/studio-scheduler/internal/models"

// AllocateRequest grants resources to a registration for a session.
type AllocateRequest struct {
	RegistrationID string `json:"registrationId" validate:"required"`
}

// AllocationResult is the allocation set held by a registration on a session.
type AllocationResult struct {
	SessionID      string                      `json:"sessionId"`
	RegistrationID string                      `json:"registrationId"`
	Existing       bool                        `json:"existing"`
	Allocations    []models.ResourceAllocation `json:"allocations"`
}

// RequirementsResponse resolves a class's per-student requirements for a head count.
type RequirementsResponse struct {
	ClassID      string                    `json:"classId"`
	Participants int                       `json:"participants"`
	Resources    []models.ResourceQuantity `json:"resources"`
}

// ResourceTotal sums a session's allocations for one resource.
type ResourceTotal struct {
	ResourceID string `json:"resourceId"`
	Allocated  int    `json:"allocated"`
}

// LedgerResponse lists a session's allocations with per-resource totals.
type LedgerResponse struct {
	SessionID   string                      `json:"sessionId"`
	Allocations []models.ResourceAllocation `json:"allocations"`
	Totals      []ResourceTotal             `json:"totals"`
}

// BackfillFailure records a reservation the backfill sweep could not allocate.
type BackfillFailure struct {
	ReservationID  string `json:"reservationId"`
	SessionID      string `json:"sessionId"`
	RegistrationID string `json:"registrationId"`
	Reason         string `json:"reason"`
}

// BackfillResult summarises a backfill sweep.
type BackfillResult struct {
	Scanned   int               `json:"scanned"`
	Allocated int               `json:"allocated"`
	Skipped   int               `json:"skipped"`
	Failed    []BackfillFailure `json:"failed"`
}

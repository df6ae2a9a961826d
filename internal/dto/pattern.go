package dto

import "github.com/noah-isme/studio-scheduler/internal/models"

// ExpandPatternRequest previews a rule without persisting anything.
type ExpandPatternRequest struct {
	Rule          string  `json:"rule" validate:"required"`
	StartDate     string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	StartTime     string  `json:"startTime" validate:"required,datetime=15:04"`
	DurationHours float64 `json:"durationHours" validate:"required,gt=0,lt=24"`
}

// OccurrenceResponse is one expanded session slot.
type OccurrenceResponse struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// ExpandPatternResponse lists the occurrences a rule produces.
type ExpandPatternResponse struct {
	Rule        string               `json:"rule"`
	Occurrences []OccurrenceResponse `json:"occurrences"`
}

// MaterializeResult reports what a materialization run wrote.
type MaterializeResult struct {
	PatternID string                `json:"patternId"`
	Expanded  int                   `json:"expanded"`
	Existing  int                   `json:"existing"`
	Created   []models.ClassSession `json:"created"`
}

// ProtectedDuplicate is a duplicate session left in place because it has active reservations.
type ProtectedDuplicate struct {
	SessionID          string `json:"sessionId"`
	KeptSessionID      string `json:"keptSessionId"`
	ActiveReservations int    `json:"activeReservations"`
}

// CleanupResult reports duplicate-session resolution for a class.
type CleanupResult struct {
	ClassID   string               `json:"classId"`
	Kept      []string             `json:"kept"`
	Deleted   []string             `json:"deleted"`
	Protected []ProtectedDuplicate `json:"protected"`
}

// SessionExportQuery selects the sessions and format of an export.
type SessionExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
	From   string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `form:"to" validate:"omitempty,datetime=2006-01-02"`
}

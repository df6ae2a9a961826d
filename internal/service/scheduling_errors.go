package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/studio-scheduler/internal/recurrence"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

// ResourceExhaustedError reports an allocation that would push a resource past its pool size.
type ResourceExhaustedError struct {
	SessionID      string
	RegistrationID string
	ResourceID     string
	Requested      int
	Available      int
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource %s on session %s: requested %d, %d available", e.ResourceID, e.SessionID, e.Requested, e.Available)
}

// DuplicateSessionError reports a session that a concurrent run already created.
type DuplicateSessionError struct {
	ClassID   string
	Date      string
	StartTime string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session for class %s on %s %s already exists", e.ClassID, e.Date, e.StartTime)
}

// ProtectedDeletionError reports a refused deletion of a session still in use.
type ProtectedDeletionError struct {
	SessionID          string
	ActiveReservations int
	Allocations        int
}

func (e *ProtectedDeletionError) Error() string {
	return fmt.Sprintf("session %s has %d active reservations and %d allocations", e.SessionID, e.ActiveReservations, e.Allocations)
}

func exhaustedError(e *ResourceExhaustedError) *appErrors.Error {
	out := appErrors.WithDetails(appErrors.ErrResourceExhausted, "", map[string]any{
		"sessionId":      e.SessionID,
		"registrationId": e.RegistrationID,
		"resourceId":     e.ResourceID,
		"requested":      e.Requested,
		"available":      e.Available,
	})
	out.Err = e
	return out
}

func protectedError(e *ProtectedDeletionError) *appErrors.Error {
	out := appErrors.WithDetails(appErrors.ErrProtectedDeletion, "", map[string]any{
		"sessionId":          e.SessionID,
		"activeReservations": e.ActiveReservations,
		"allocations":        e.Allocations,
	})
	out.Err = e
	return out
}

func ruleError(err error) error {
	var ruleErr *recurrence.InvalidRuleError
	if !errors.As(err, &ruleErr) {
		return err
	}
	out := appErrors.WithDetails(appErrors.ErrInvalidRule, ruleErr.Reason, map[string]any{"rule": ruleErr.Rule})
	out.Err = ruleErr
	return out
}

func notFoundOr(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.WithDetails(appErrors.ErrNotFound, what+" not found", map[string]any{"id": id})
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}

func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

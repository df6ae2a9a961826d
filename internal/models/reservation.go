package models

// ReservationStatus is the lifecycle state of a session reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationCheckedIn ReservationStatus = "CHECKED_IN"
	ReservationAttended  ReservationStatus = "ATTENDED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationNoShow    ReservationStatus = "NO_SHOW"
)

// ActiveReservationStatuses count toward enrollment and allocation.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationCheckedIn,
	ReservationAttended,
	ReservationNoShow,
}

// Active reports whether the status counts toward enrollment.
func (s ReservationStatus) Active() bool {
	return s != ReservationCancelled && s != ""
}

// Reservation links a registration to a session.
type Reservation struct {
	ID             string            `db:"id" json:"id"`
	RegistrationID string            `db:"registration_id" json:"registration_id"`
	SessionID      string            `db:"session_id" json:"session_id"`
	Status         ReservationStatus `db:"status" json:"status"`
}

// BackfillCandidate is an active reservation whose registration holds no allocation for the session.
type BackfillCandidate struct {
	ReservationID  string `db:"reservation_id" json:"reservation_id"`
	RegistrationID string `db:"registration_id" json:"registration_id"`
	SessionID      string `db:"session_id" json:"session_id"`
	ClassID        string `db:"class_id" json:"class_id"`
}

package service

import (
	"sort"
	"time"

	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/recurrence"
)

const minutesPerDay = 24 * 60

// AvailabilityInput is everything needed to compute open-studio capacity for one window.
type AvailabilityInput struct {
	Window              Window
	Now                 time.Time
	DefaultReleaseHours float64
	Resources           []models.StudioResource
	Holds               []models.SessionHold
	Requirements        []models.ResourceRequirement
	Usage               []models.ResourceUsage
	Bookings            []models.OpenStudioBooking
}

// Window is a same-day time range treated as half-open [Start, End).
type Window struct {
	Date  time.Time
	Start recurrence.ClockTime
	End   recurrence.ClockTime
}

// NewWindow parses "HH:MM" bounds for a calendar date.
func NewWindow(date time.Time, start, end string) (Window, error) {
	s, err := recurrence.ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := recurrence.ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Date: recurrence.CalendarDate(date), Start: s, End: e}, nil
}

// bounds returns minutes since midnight; an end at or before the start runs past midnight.
func (w Window) bounds() (int, int) {
	start, end := w.Start.Minutes(), w.End.Minutes()
	if end <= start {
		end += minutesPerDay
	}
	return start, end
}

// Overlaps applies the half-open test: back-to-back windows do not overlap.
func (w Window) Overlaps(other Window) bool {
	s1, e1 := w.bounds()
	s2, e2 := other.bounds()
	return s1 < e2 && s2 < e1
}

// Contains reports whether other lies within w.
func (w Window) Contains(other Window) bool {
	s1, e1 := w.bounds()
	s2, e2 := other.bounds()
	return s1 <= s2 && e2 <= e1
}

// ComputeReleaseTime is the instant a session's hold lapses: its actual start, not midnight, minus releaseHours.
func ComputeReleaseTime(sessionDate time.Time, startTime recurrence.ClockTime, releaseHours float64) time.Time {
	start := recurrence.Combine(sessionDate, startTime)
	return start.Add(-time.Duration(releaseHours * float64(time.Hour)))
}

func releaseHoursFor(hold models.SessionHold, defaultHours float64) float64 {
	if hold.ResourceReleaseHours != nil {
		return *hold.ResourceReleaseHours
	}
	return defaultHours
}

// holdActive reports whether a class session still reserves its full hold at now.
func holdActive(hold models.SessionHold, now time.Time, defaultHours float64) bool {
	if hold.Status != models.SessionStatusScheduled || hold.ResourcesReleasedAt != nil {
		return false
	}
	start, err := recurrence.ParseClock(hold.StartTime)
	if err != nil {
		return false
	}
	return now.Before(ComputeReleaseTime(hold.SessionDate, start, releaseHoursFor(hold, defaultHours)))
}

// heldUnits is how many units of a resource a class session keeps away from open studio.
func heldUnits(hold models.SessionHold, req models.ResourceRequirement, allocated, total int, active bool) int {
	var held int
	switch {
	case active && hold.ReserveFullCapacity && hold.HoldEntirePool:
		held = total
	case active && hold.ReserveFullCapacity:
		held = req.QuantityPerStudent * hold.MaxStudents
	default:
		held = req.QuantityPerStudent * hold.CurrentEnrollment
		if allocated > held {
			held = allocated
		}
	}
	if held > total {
		held = total
	}
	if held < 0 {
		held = 0
	}
	return held
}

// CalculateAvailability computes per-resource capacity for the input window. Available never drops below zero.
func CalculateAvailability(in AvailabilityInput) []models.ResourceAvailability {
	requirements := make(map[string]map[string]models.ResourceRequirement)
	for _, req := range in.Requirements {
		if requirements[req.ClassID] == nil {
			requirements[req.ClassID] = make(map[string]models.ResourceRequirement)
		}
		requirements[req.ClassID][req.ResourceID] = req
	}
	usage := make(map[string]map[string]int)
	for _, u := range in.Usage {
		if usage[u.SessionID] == nil {
			usage[u.SessionID] = make(map[string]int)
		}
		usage[u.SessionID][u.ResourceID] += u.Allocated
	}

	type overlapping struct {
		hold   models.SessionHold
		active bool
	}
	var holds []overlapping
	for _, hold := range in.Holds {
		if hold.Status != models.SessionStatusScheduled {
			continue
		}
		if !recurrence.SameDate(hold.SessionDate, in.Window.Date) {
			continue
		}
		w, err := NewWindow(hold.SessionDate, hold.StartTime, hold.EndTime)
		if err != nil || !in.Window.Overlaps(w) {
			continue
		}
		holds = append(holds, overlapping{hold: hold, active: holdActive(hold, in.Now, in.DefaultReleaseHours)})
	}

	out := make([]models.ResourceAvailability, 0, len(in.Resources))
	for _, resource := range in.Resources {
		entry := models.ResourceAvailability{
			ResourceID:   resource.ID,
			ResourceName: resource.Name,
			Total:        resource.TotalQuantity,
		}
		for _, h := range holds {
			req, ok := requirements[h.hold.ClassID][resource.ID]
			if !ok {
				continue
			}
			units := heldUnits(h.hold, req, usage[h.hold.ID][resource.ID], resource.TotalQuantity, h.active)
			if units == 0 {
				continue
			}
			entry.HeldByClasses += units
			entry.HeldSlots = append(entry.HeldSlots, models.HeldSlot{
				SessionID: h.hold.ID,
				StartTime: h.hold.StartTime,
				EndTime:   h.hold.EndTime,
				Quantity:  units,
			})
		}
		if entry.HeldByClasses > entry.Total {
			entry.HeldByClasses = entry.Total
		}
		for _, booking := range in.Bookings {
			if booking.ResourceID != resource.ID || booking.Status != models.BookingConfirmed {
				continue
			}
			w, err := NewWindow(in.Window.Date, booking.StartTime, booking.EndTime)
			if err != nil || !in.Window.Overlaps(w) {
				continue
			}
			quantity := booking.Quantity
			if quantity < 1 {
				quantity = 1
			}
			entry.Booked += quantity
		}
		entry.Available = entry.Total - entry.HeldByClasses - entry.Booked
		if entry.Available < 0 {
			entry.Available = 0
		}
		sort.SliceStable(entry.HeldSlots, func(i, j int) bool {
			return entry.HeldSlots[i].StartTime < entry.HeldSlots[j].StartTime
		})
		out = append(out, entry)
	}
	return out
}

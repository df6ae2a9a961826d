package recurrence

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the persisted calendar date format.
	DateLayout = "2006-01-02"

	minutesPerDay = 24 * 60
)

// ClockTime is a wall-clock time of day with minute precision, always interpreted in UTC.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour "HH:MM" string.
func ParseClock(raw string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return ClockTime{}, fmt.Errorf("time %q must use HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("time %q has invalid hour", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("time %q has invalid minute", raw)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(raw string) ClockTime {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the clock as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes elapsed since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is earlier in the day than other.
func (c ClockTime) Before(other ClockTime) bool {
	return c.Minutes() < other.Minutes()
}

// AddHours adds a fractional number of hours, wrapping past midnight.
// Durations must be positive and shorter than a day.
func (c ClockTime) AddHours(hours float64) (ClockTime, error) {
	if math.IsNaN(hours) || hours <= 0 || hours >= 24 {
		return ClockTime{}, fmt.Errorf("duration %.2fh must be greater than 0 and less than 24", hours)
	}
	delta := int(math.Round(hours * 60))
	if delta == 0 {
		return ClockTime{}, fmt.Errorf("duration %.4fh rounds to zero minutes", hours)
	}
	total := (c.Minutes() + delta) % minutesPerDay
	return ClockTime{Hour: total / 60, Minute: total % 60}, nil
}

// ParseDate parses an ISO calendar date into UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must use YYYY-MM-DD", raw)
	}
	return d, nil
}

// CalendarDate truncates t to its UTC calendar date.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Combine joins a calendar date with a clock time into a UTC instant.
func Combine(date time.Time, clock ClockTime) time.Time {
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, clock.Hour, clock.Minute, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same UTC calendar date.
func SameDate(a, b time.Time) bool {
	return CalendarDate(a).Equal(CalendarDate(b))
}

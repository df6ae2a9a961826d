// Package recurrence expands class schedule rules into concrete dated occurrences.
//
// All arithmetic happens on UTC calendar dates. Days are stepped with AddDate so
// a weekday rule always lands on the intended weekday regardless of offsets.
package recurrence

import (
	"fmt"
	"time"
)

// DefaultMaxOccurrences bounds a single expansion.
const DefaultMaxOccurrences = 730

// Pattern is the expandable part of a schedule pattern.
type Pattern struct {
	Rule          Rule
	StartDate     time.Time
	StartTime     ClockTime
	DurationHours float64
}

// Occurrence is one concrete session slot.
type Occurrence struct {
	Date      time.Time
	StartTime ClockTime
	EndTime   ClockTime
}

// Start returns the instant the occurrence begins.
func (o Occurrence) Start() time.Time {
	return Combine(o.Date, o.StartTime)
}

// Key identifies the occurrence as "YYYY-MM-DD HH:MM".
func (o Occurrence) Key() string {
	return o.Date.Format(DateLayout) + " " + o.StartTime.String()
}

// Expander turns patterns into occurrences under an occurrence cap.
type Expander struct {
	maxOccurrences int
}

// NewExpander builds an expander; max <= 0 falls back to DefaultMaxOccurrences.
func NewExpander(max int) *Expander {
	if max <= 0 {
		max = DefaultMaxOccurrences
	}
	return &Expander{maxOccurrences: max}
}

// Expand is a convenience wrapper using the default cap.
func Expand(p Pattern) ([]Occurrence, error) {
	return NewExpander(DefaultMaxOccurrences).Expand(p)
}

// Expand returns ascending, deduplicated occurrences for the pattern.
func (e *Expander) Expand(p Pattern) ([]Occurrence, error) {
	rule := p.Rule
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if p.StartDate.IsZero() {
		return nil, invalid(rule.String(), "start date is required")
	}
	if rule.Count > e.maxOccurrences {
		return nil, invalid(rule.String(), fmt.Sprintf("COUNT exceeds the limit of %d occurrences", e.maxOccurrences))
	}
	end, err := p.StartTime.AddHours(p.DurationHours)
	if err != nil {
		return nil, invalid(rule.String(), err.Error())
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}
	start := CalendarDate(p.StartDate)
	var until time.Time
	if rule.Until != nil {
		until = CalendarDate(*rule.Until)
	}

	var dates []time.Time
	switch rule.Frequency {
	case FrequencyDaily:
		dates, err = e.daily(rule, start, until, interval)
	case FrequencyWeekly:
		dates, err = e.weekly(rule, start, until, interval)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		out = append(out, Occurrence{Date: d, StartTime: p.StartTime, EndTime: end})
	}
	return out, nil
}

func (e *Expander) daily(rule Rule, start, until time.Time, interval int) ([]time.Time, error) {
	filter := weekdaySet(rule.Weekdays)
	if len(filter) > 0 && !reachesWeekday(start.Weekday(), interval, filter) {
		return nil, invalid(rule.String(), fmt.Sprintf("INTERVAL=%d from a %s never lands on a BYDAY weekday", interval, start.Weekday()))
	}
	var dates []time.Time
	for step := 0; ; step++ {
		day := start.AddDate(0, 0, step*interval)
		if done(rule, until, day, len(dates)) {
			return dates, nil
		}
		if len(filter) > 0 {
			if _, ok := filter[day.Weekday()]; !ok {
				continue
			}
		}
		if len(dates) == e.maxOccurrences {
			return nil, invalid(rule.String(), fmt.Sprintf("rule produces more than %d occurrences", e.maxOccurrences))
		}
		dates = append(dates, day)
	}
}

func (e *Expander) weekly(rule Rule, start, until time.Time, interval int) ([]time.Time, error) {
	days := normalizeWeekdays(rule.Weekdays)
	weekStart := start.AddDate(0, 0, -mondayOffset(start.Weekday()))
	var dates []time.Time
	for week := 0; ; week++ {
		base := weekStart.AddDate(0, 0, 7*week*interval)
		for _, wd := range days {
			day := base.AddDate(0, 0, mondayOffset(wd))
			if day.Before(start) {
				continue
			}
			if done(rule, until, day, len(dates)) {
				return dates, nil
			}
			if len(dates) == e.maxOccurrences {
				return nil, invalid(rule.String(), fmt.Sprintf("rule produces more than %d occurrences", e.maxOccurrences))
			}
			dates = append(dates, day)
		}
	}
}

func done(rule Rule, until, day time.Time, produced int) bool {
	if rule.Count > 0 {
		return produced >= rule.Count
	}
	return day.After(until)
}

// reachesWeekday reports whether stepping interval days from anchor ever hits a weekday in set.
// The weekday sequence repeats within seven steps.
func reachesWeekday(anchor time.Weekday, interval int, set map[time.Weekday]struct{}) bool {
	for k := 0; k < 7; k++ {
		if _, ok := set[time.Weekday((int(anchor)+k*interval)%7)]; ok {
			return true
		}
	}
	return false
}

func weekdaySet(days []time.Weekday) map[time.Weekday]struct{} {
	set := make(map[time.Weekday]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Frequency is the repetition unit of a rule.
type Frequency string

const (
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// Rule is the restricted recurrence grammar:
//
//	FREQ=DAILY|WEEKLY[;BYDAY=MO,TU,...][;INTERVAL=n](;COUNT=n|;UNTIL=YYYY-MM-DD)
//
// Exactly one of Count and Until terminates the rule.
type Rule struct {
	Frequency Frequency
	Interval  int
	Weekdays  []time.Weekday
	Count     int
	Until     *time.Time
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// ParseRule parses and validates a persisted rule string.
func ParseRule(raw string) (Rule, error) {
	rule := Rule{Interval: 1}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Rule{}, invalid(raw, "rule is empty")
	}

	seen := make(map[string]bool)
	for _, segment := range strings.Split(trimmed, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return Rule{}, invalid(raw, fmt.Sprintf("segment %q is not KEY=VALUE", segment))
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if seen[key] {
			return Rule{}, invalid(raw, fmt.Sprintf("%s given more than once", key))
		}
		seen[key] = true

		switch key {
		case "FREQ":
			switch Frequency(strings.ToUpper(value)) {
			case FrequencyDaily:
				rule.Frequency = FrequencyDaily
			case FrequencyWeekly:
				rule.Frequency = FrequencyWeekly
			default:
				return Rule{}, invalid(raw, fmt.Sprintf("unsupported frequency %q", value))
			}
		case "BYDAY":
			days, err := parseWeekdays(value)
			if err != nil {
				return Rule{}, invalid(raw, err.Error())
			}
			rule.Weekdays = days
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Rule{}, invalid(raw, "INTERVAL must be a positive integer")
			}
			rule.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Rule{}, invalid(raw, "COUNT must be a positive integer")
			}
			rule.Count = n
		case "UNTIL":
			until, err := ParseDate(value)
			if err != nil {
				return Rule{}, invalid(raw, err.Error())
			}
			rule.Until = &until
		default:
			return Rule{}, invalid(raw, fmt.Sprintf("unsupported key %q", key))
		}
	}

	if err := rule.validate(raw); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Validate checks a programmatically built rule.
func (r Rule) Validate() error {
	return r.validate(r.String())
}

func (r Rule) validate(raw string) error {
	if r.Frequency == "" {
		return invalid(raw, "FREQ is required")
	}
	if r.Frequency != FrequencyDaily && r.Frequency != FrequencyWeekly {
		return invalid(raw, fmt.Sprintf("unsupported frequency %q", r.Frequency))
	}
	if r.Interval < 0 {
		return invalid(raw, "INTERVAL must be a positive integer")
	}
	if r.Frequency == FrequencyWeekly && len(r.Weekdays) == 0 {
		return invalid(raw, "weekly rules require BYDAY")
	}
	hasCount := r.Count > 0
	hasUntil := r.Until != nil
	if r.Count < 0 {
		return invalid(raw, "COUNT must be a positive integer")
	}
	if !hasCount && !hasUntil {
		return invalid(raw, "one of COUNT or UNTIL is required")
	}
	if hasCount && hasUntil {
		return invalid(raw, "COUNT and UNTIL are mutually exclusive")
	}
	return nil
}

// String renders the rule in canonical form.
func (r Rule) String() string {
	parts := []string{"FREQ=" + string(r.Frequency)}
	if len(r.Weekdays) > 0 {
		codes := make([]string, 0, len(r.Weekdays))
		for _, day := range normalizeWeekdays(r.Weekdays) {
			codes = append(codes, weekdayNames[day])
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(DateLayout))
	}
	return strings.Join(parts, ";")
}

func parseWeekdays(value string) ([]time.Weekday, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("BYDAY must list at least one weekday")
	}
	var days []time.Weekday
	for _, code := range strings.Split(value, ",") {
		day, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", code)
		}
		days = append(days, day)
	}
	return normalizeWeekdays(days), nil
}

// normalizeWeekdays dedupes and orders weekdays Monday first.
func normalizeWeekdays(days []time.Weekday) []time.Weekday {
	set := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if _, ok := set[day]; ok {
			continue
		}
		set[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool {
		return mondayOffset(out[i]) < mondayOffset(out[j])
	})
	return out
}

func mondayOffset(day time.Weekday) int {
	return (int(day) + 6) % 7
}

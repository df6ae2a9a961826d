package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := ParseDate(raw)
	require.NoError(t, err)
	return d
}

func mustRule(t *testing.T, raw string) Rule {
	t.Helper()
	r, err := ParseRule(raw)
	require.NoError(t, err)
	return r
}

func TestExpandWeeklyCountLandsOnWeekdays(t *testing.T) {
	cases := []struct {
		name  string
		rule  string
		start string
		want  []time.Weekday
		count int
	}{
		{name: "single weekday", rule: "FREQ=WEEKLY;BYDAY=SA;COUNT=6", start: "2026-02-14", want: []time.Weekday{time.Saturday}, count: 6},
		{name: "two weekdays anchored midweek", rule: "FREQ=WEEKLY;BYDAY=MO,TH;COUNT=7", start: "2026-02-11", want: []time.Weekday{time.Monday, time.Thursday}, count: 7},
		{name: "sunday wraps week", rule: "FREQ=WEEKLY;BYDAY=SU,MO;COUNT=5", start: "2026-03-01", want: []time.Weekday{time.Sunday, time.Monday}, count: 5},
		{name: "across dst boundary", rule: "FREQ=WEEKLY;BYDAY=TU;COUNT=10", start: "2026-03-03", want: []time.Weekday{time.Tuesday}, count: 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			occ, err := Expand(Pattern{
				Rule:          mustRule(t, tc.rule),
				StartDate:     date(t, tc.start),
				StartTime:     MustClock("18:00"),
				DurationHours: 2.5,
			})
			require.NoError(t, err)
			require.Len(t, occ, tc.count)

			allowed := weekdaySet(tc.want)
			for i, o := range occ {
				_, ok := allowed[o.Date.Weekday()]
				assert.True(t, ok, "occurrence %s on %s", o.Key(), o.Date.Weekday())
				assert.Equal(t, time.UTC, o.Date.Location())
				assert.Equal(t, 0, o.Date.Hour())
				assert.False(t, o.Date.Before(date(t, tc.start)))
				if i > 0 {
					assert.True(t, occ[i-1].Start().Before(o.Start()), "not strictly ascending at %d", i)
				}
			}
		})
	}
}

func TestExpandWeeklyFirstOccurrence(t *testing.T) {
	occ, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=3"),
		StartDate:     date(t, "2026-02-11"),
		StartTime:     MustClock("10:00"),
		DurationHours: 2,
	})
	require.NoError(t, err)
	keys := []string{occ[0].Key(), occ[1].Key(), occ[2].Key()}
	assert.Equal(t, []string{"2026-02-11 10:00", "2026-02-16 10:00", "2026-02-18 10:00"}, keys)
	assert.Equal(t, "12:00", occ[0].EndTime.String())
}

func TestExpandWeeklyInterval(t *testing.T) {
	occ, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=WEEKLY;BYDAY=FR;INTERVAL=2;UNTIL=2026-03-31"),
		StartDate:     date(t, "2026-03-06"),
		StartTime:     MustClock("09:30"),
		DurationHours: 1,
	})
	require.NoError(t, err)
	var got []string
	for _, o := range occ {
		got = append(got, o.Date.Format(DateLayout))
	}
	assert.Equal(t, []string{"2026-03-06", "2026-03-20"}, got)
}

func TestExpandDailyUntilInclusive(t *testing.T) {
	occ, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=DAILY;UNTIL=2026-01-05"),
		StartDate:     date(t, "2026-01-01"),
		StartTime:     MustClock("08:00"),
		DurationHours: 1,
	})
	require.NoError(t, err)
	require.Len(t, occ, 5)
	assert.Equal(t, "2026-01-05", occ[4].Date.Format(DateLayout))
}

func TestExpandDailyWeekdayFilter(t *testing.T) {
	occ, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR;COUNT=6"),
		StartDate:     date(t, "2026-01-02"),
		StartTime:     MustClock("08:00"),
		DurationHours: 1,
	})
	require.NoError(t, err)
	require.Len(t, occ, 6)
	for _, o := range occ {
		assert.NotEqual(t, time.Saturday, o.Date.Weekday())
		assert.NotEqual(t, time.Sunday, o.Date.Weekday())
	}
}

func TestExpandDailyIntervalWithWeekdayFilter(t *testing.T) {
	weekly, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=DAILY;INTERVAL=7;BYDAY=MO;COUNT=3"),
		StartDate:     date(t, "2026-02-02"),
		StartTime:     MustClock("18:00"),
		DurationHours: 2,
	})
	require.NoError(t, err)
	require.Len(t, weekly, 3)
	assert.Equal(t, "2026-02-16", weekly[2].Date.Format(DateLayout))

	// Every third day from a Monday reaches Tuesday on the sixth step.
	sparse, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=DAILY;INTERVAL=3;BYDAY=TU;COUNT=2"),
		StartDate:     date(t, "2026-02-02"),
		StartTime:     MustClock("18:00"),
		DurationHours: 2,
	})
	require.NoError(t, err)
	require.Len(t, sparse, 2)
	assert.Equal(t, "2026-02-17", sparse[0].Date.Format(DateLayout))
	assert.Equal(t, "2026-03-10", sparse[1].Date.Format(DateLayout))
}

func TestExpandUntilBeforeStartYieldsNothing(t *testing.T) {
	occ, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=WEEKLY;BYDAY=MO;UNTIL=2025-12-01"),
		StartDate:     date(t, "2026-01-01"),
		StartTime:     MustClock("08:00"),
		DurationHours: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestExpandIsDeterministic(t *testing.T) {
	p := Pattern{
		Rule:          mustRule(t, "FREQ=WEEKLY;BYDAY=TU,SA;COUNT=12"),
		StartDate:     date(t, "2026-04-01"),
		StartTime:     MustClock("19:15"),
		DurationHours: 1.75,
	}
	first, err := Expand(p)
	require.NoError(t, err)
	second, err := Expand(p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandEndTimeWrapsPastMidnight(t *testing.T) {
	occ, err := Expand(Pattern{
		Rule:          mustRule(t, "FREQ=DAILY;COUNT=1"),
		StartDate:     date(t, "2026-01-01"),
		StartTime:     MustClock("22:30"),
		DurationHours: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "01:30", occ[0].EndTime.String())
}

func TestExpandRejectsInvalidPatterns(t *testing.T) {
	cases := []struct {
		name     string
		pattern  Pattern
		expander *Expander
	}{
		{name: "multi-day duration", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Count: 1}, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 24}},
		{name: "zero duration", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Count: 1}, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00")}},
		{name: "no termination", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily}, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 1}},
		{name: "weekly without weekdays", pattern: Pattern{Rule: Rule{Frequency: FrequencyWeekly, Count: 3}, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 1}},
		{name: "missing start date", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Count: 3}, StartTime: MustClock("10:00"), DurationHours: 1}},
		{name: "count over cap", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Count: 11}, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 1}, expander: NewExpander(10)},
		{name: "daily step never meets weekday", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Interval: 7, Weekdays: []time.Weekday{time.Tuesday}, Count: 3}, StartDate: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 1}},
		{name: "fortnightly step never meets weekday", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Interval: 14, Weekdays: []time.Weekday{time.Friday, time.Saturday}, Until: ptrTime(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))}, StartDate: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 1}},
		{name: "until over cap", pattern: Pattern{Rule: Rule{Frequency: FrequencyDaily, Until: ptrTime(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))}, StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), StartTime: MustClock("10:00"), DurationHours: 1}, expander: NewExpander(10)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := tc.expander
			if e == nil {
				e = NewExpander(0)
			}
			_, err := e.Expand(tc.pattern)
			var ruleErr *InvalidRuleError
			assert.True(t, errors.As(err, &ruleErr), "expected InvalidRuleError, got %v", err)
		})
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

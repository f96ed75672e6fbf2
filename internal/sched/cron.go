package sched

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week).
//
// Matching follows the classic rule: when both day-of-month and
// day-of-week are restricted, a time matches if EITHER matches.
type Schedule struct {
	minute fieldSet
	hour   fieldSet
	dom    fieldSet
	month  fieldSet
	dow    fieldSet

	domStar bool
	dowStar bool
}

// fieldSet is a bitmask of allowed values for one cron field.
// Cron field values never exceed 59, so a uint64 covers every field.
type fieldSet uint64

func (s fieldSet) has(v int) bool {
	return s&(1<<uint(v)) != 0
}

// ParseSchedule parses a five-field cron expression. Supported syntax
// per field: "*", single values, ranges "a-b", lists "a,b,c", and
// steps "*/n" or "a-b/n". Day-of-week 7 is an alias for 0 (Sunday).
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("schedule %q: want 5 fields, got %d", expr, len(parts))
	}

	var (
		s   Schedule
		err error
	)
	if s.minute, err = parseField(parts[0], 0, 59); err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: minute: %w", expr, err)
	}
	if s.hour, err = parseField(parts[1], 0, 23); err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: hour: %w", expr, err)
	}
	if s.dom, err = parseField(parts[2], 1, 31); err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: day of month: %w", expr, err)
	}
	if s.month, err = parseField(parts[3], 1, 12); err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: month: %w", expr, err)
	}
	if s.dow, err = parseField(parts[4], 0, 7); err != nil {
		return Schedule{}, fmt.Errorf("schedule %q: day of week: %w", expr, err)
	}
	// Fold Sunday alias 7 into 0.
	if s.dow.has(7) {
		s.dow |= 1
		s.dow &^= 1 << 7
	}

	s.domStar = parts[2] == "*"
	s.dowStar = parts[4] == "*"
	return s, nil
}

// MustParseSchedule panics on a malformed expression. Schedules come
// from startup configuration, where malformed is fatal anyway.
func MustParseSchedule(expr string) Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func parseField(spec string, min, max int) (fieldSet, error) {
	var set fieldSet
	for _, part := range strings.Split(spec, ",") {
		rangePart, step := part, 1
		if base, stepStr, found := strings.Cut(part, "/"); found {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step %q", part)
			}
			rangePart, step = base, n
		}

		lo, hi := min, max
		switch {
		case rangePart == "*":

		case strings.Contains(rangePart, "-"):
			loStr, hiStr, _ := strings.Cut(rangePart, "-")
			var err error
			if lo, err = parseValue(loStr, min, max); err != nil {
				return 0, err
			}
			if hi, err = parseValue(hiStr, min, max); err != nil {
				return 0, err
			}
			if lo > hi {
				return 0, fmt.Errorf("inverted range %q", rangePart)
			}

		default:
			v, err := parseValue(rangePart, min, max)
			if err != nil {
				return 0, err
			}
			lo, hi = v, v
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func parseValue(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", v, min, max)
	}
	return v, nil
}

// Matches reports whether t satisfies the schedule, at minute
// granularity.
func (s Schedule) Matches(t time.Time) bool {
	if !s.minute.has(t.Minute()) || !s.hour.has(t.Hour()) || !s.month.has(int(t.Month())) {
		return false
	}

	domOK := s.dom.has(t.Day())
	dowOK := s.dow.has(int(t.Weekday()))
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowOK
	case s.dowStar:
		return domOK
	default:
		return domOK || dowOK
	}
}

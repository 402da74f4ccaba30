package calendar

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const maxPreviewOccurrences = 500

func parseRule(rule string) (*rrule.RRule, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(rule, "RRULE:")
	if rule == "" {
		return nil, errors.New("empty rule")
	}
	return rrule.StrToRRule(rule)
}

// ValidateRecurrenceRule accepts an RFC 5545 RRULE value, with or without
// the "RRULE:" prefix.
func ValidateRecurrenceRule(rule string) error {
	_, err := parseRule(rule)
	return err
}

// Occurrences lists the first start instants of ev up to and including
// until, at most limit of them (maxPreviewOccurrences when limit <= 0). A
// non-recurring event yields its own start when that is not after until.
func Occurrences(ev Event, until time.Time, limit int) ([]time.Time, error) {
	if limit <= 0 || limit > maxPreviewOccurrences {
		limit = maxPreviewOccurrences
	}
	if !ev.IsRecurring || ev.RecurrenceRule == nil || *ev.RecurrenceRule == "" {
		if ev.StartTime.After(until) {
			return []time.Time{}, nil
		}
		return []time.Time{ev.StartTime}, nil
	}

	r, err := parseRule(*ev.RecurrenceRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.StartTime)

	// Walk the rule lazily: the work is bounded by limit, not by how far
	// away until is.
	times := make([]time.Time, 0, min(limit, 16))
	next := r.Iterator()
	for len(times) < limit {
		t, ok := next()
		if !ok || t.After(until) {
			break
		}
		times = append(times, t)
	}
	return times, nil
}

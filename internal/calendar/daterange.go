package calendar

import (
	"fmt"
	"strings"
	"time"
)

type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
)

func ParseUnit(raw string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(raw))); u {
	case UnitDay, UnitWeek, UnitMonth:
		return u, nil
	case "today":
		return UnitDay, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, raw)
	}
}

// Range is a closed interval of instants: Start <= t <= End.
type Range struct {
	Start time.Time
	End   time.Time
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ISO renders both bounds as UTC ISO-8601 instants with millisecond precision.
func (r Range) ISO() (string, string) {
	return r.Start.UTC().Format(isoMillis), r.End.UTC().Format(isoMillis)
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// DayRange spans local midnight to 23:59:59 of now's day, in now's location.
func DayRange(now time.Time) Range {
	y, m, d := now.Date()
	loc := now.Location()
	return Range{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d, 23, 59, 59, 0, loc),
	}
}

// WeekRange starts at midnight of the Sunday on or before now and ends at
// 23:59:59.999 on the following Saturday.
func WeekRange(now time.Time) Range {
	y, m, d := now.Date()
	loc := now.Location()
	sunday := d - int(now.Weekday())
	return Range{
		Start: time.Date(y, m, sunday, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, sunday+6, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

// MonthRange spans midnight of day 1 to 23:59:59 of the month's last day.
func MonthRange(now time.Time) Range {
	y, m, _ := now.Date()
	loc := now.Location()
	// day 0 of the next month normalizes to the last day of this one
	return Range{
		Start: time.Date(y, m, 1, 0, 0, 0, 0, loc),
		End:   time.Date(y, m+1, 0, 23, 59, 59, 0, loc),
	}
}

func ResolveRange(unit Unit, now time.Time) (Range, error) {
	switch unit {
	case UnitDay:
		return DayRange(now), nil
	case UnitWeek:
		return WeekRange(now), nil
	case UnitMonth:
		return MonthRange(now), nil
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
}

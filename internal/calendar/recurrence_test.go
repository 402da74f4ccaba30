package calendar

import (
	"testing"
	"time"
)

func TestOccurrences_Weekly(t *testing.T) {
	ev := Event{
		StartTime:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		IsRecurring:    true,
		RecurrenceRule: ptr("RRULE:FREQ=WEEKLY;BYDAY=MO"),
	}
	times, err := Occurrences(ev, time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatalf("Occurrences returned error: %v", err)
	}
	if len(times) != 5 {
		t.Fatalf("expected 5 Mondays, got %v", times)
	}
	for _, ts := range times {
		if ts.Weekday() != time.Monday || ts.Hour() != 9 {
			t.Fatalf("unexpected occurrence %v", ts)
		}
	}
}

func TestOccurrences_Limit(t *testing.T) {
	ev := Event{StartTime: wednesday, IsRecurring: true, RecurrenceRule: ptr("FREQ=HOURLY")}
	times, err := Occurrences(ev, wednesday.AddDate(1, 0, 0), 3)
	if err != nil {
		t.Fatalf("Occurrences returned error: %v", err)
	}
	if len(times) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(times))
	}

	times, _ = Occurrences(ev, wednesday.AddDate(1, 0, 0), 0)
	if len(times) != maxPreviewOccurrences {
		t.Fatalf("expected cap %d, got %d", maxPreviewOccurrences, len(times))
	}
}

func TestOccurrences_NonRecurring(t *testing.T) {
	ev := Event{StartTime: wednesday}
	times, err := Occurrences(ev, wednesday, 0)
	if err != nil || len(times) != 1 || !times[0].Equal(wednesday) {
		t.Fatalf("unexpected occurrences: %v %v", times, err)
	}
	times, _ = Occurrences(ev, wednesday.Add(-time.Second), 0)
	if times == nil || len(times) != 0 {
		t.Fatalf("expected empty slice, got %#v", times)
	}
}

func TestValidateRecurrenceRule(t *testing.T) {
	for _, rule := range []string{"FREQ=DAILY;COUNT=3", "RRULE:FREQ=MONTHLY;BYMONTHDAY=1"} {
		if err := ValidateRecurrenceRule(rule); err != nil {
			t.Fatalf("ValidateRecurrenceRule(%q) returned %v", rule, err)
		}
	}
	for _, rule := range []string{"", "RRULE:", "FREQ=NEVER"} {
		if err := ValidateRecurrenceRule(rule); err == nil {
			t.Fatalf("ValidateRecurrenceRule(%q) should fail", rule)
		}
	}
}

func TestOccurrences_DenseRuleStopsAtLimit(t *testing.T) {
	ev := Event{StartTime: wednesday, IsRecurring: true, RecurrenceRule: ptr("FREQ=SECONDLY")}

	started := time.Now()
	times, err := Occurrences(ev, wednesday.AddDate(1, 0, 0), 5)
	if err != nil {
		t.Fatalf("Occurrences returned error: %v", err)
	}
	if len(times) != 5 {
		t.Fatalf("expected 5 occurrences, got %d", len(times))
	}
	for i, ts := range times {
		if want := wednesday.Add(time.Duration(i) * time.Second); !ts.Equal(want) {
			t.Fatalf("occurrence %d = %v, want %v", i, ts, want)
		}
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("a 5-item preview over a year took %v", elapsed)
	}
}

func TestOccurrences_StopsAtUntil(t *testing.T) {
	ev := Event{StartTime: wednesday, IsRecurring: true, RecurrenceRule: ptr("FREQ=DAILY")}
	times, err := Occurrences(ev, wednesday.AddDate(0, 0, 2), 0)
	if err != nil || len(times) != 3 {
		t.Fatalf("expected 3 daily occurrences through until, got %v %v", times, err)
	}
}

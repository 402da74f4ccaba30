package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const icsProductID = "-//planboard//calendar-api//EN"

// ExportICS renders events as one VCALENDAR with a VEVENT per event.
func ExportICS(name string, events []Event, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp.UTC())
		if ev.AllDay {
			ve.SetAllDayStartAt(ev.StartTime)
			ve.SetAllDayEndAt(ev.EndTime)
		} else {
			ve.SetStartAt(ev.StartTime.UTC())
			ve.SetEndAt(ev.EndTime.UTC())
		}
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.URL != "" {
			ve.SetURL(ev.URL)
		}
		if ev.Category != "" {
			ve.SetProperty(ics.ComponentPropertyCategories, ev.Category)
		}
		if ev.Color != "" {
			ve.SetProperty(ics.ComponentProperty("COLOR"), ev.Color)
		}
		if status, ok := icsStatus(ev.Status); ok {
			ve.SetStatus(status)
		}
		if ev.IsPublic {
			ve.SetClass(ics.ClassificationPublic)
		} else {
			ve.SetClass(ics.ClassificationPrivate)
		}
		if ev.IsRecurring && ev.RecurrenceRule != nil && *ev.RecurrenceRule != "" {
			ve.AddRrule(strings.TrimPrefix(*ev.RecurrenceRule, "RRULE:"))
		}
	}
	return cal.Serialize()
}

func icsStatus(status string) (ics.ObjectStatus, bool) {
	switch strings.ToLower(status) {
	case "confirmed":
		return ics.ObjectStatusConfirmed, true
	case "tentative":
		return ics.ObjectStatusTentative, true
	case "cancelled", "canceled":
		return ics.ObjectStatusCancelled, true
	default:
		return "", false
	}
}

// ParseICS turns each VEVENT of an iCalendar stream into a creation input.
// Events without a summary or start are rejected with ErrInvalidEvent.
func ParseICS(r io.Reader) ([]EventInput, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse calendar: %v", ErrInvalidEvent, err)
	}

	out := make([]EventInput, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		in, err := inputFromVEvent(ve)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func inputFromVEvent(ve *ics.VEvent) (EventInput, error) {
	var in EventInput
	prop := func(p ics.ComponentProperty) *string {
		if ip := ve.GetProperty(p); ip != nil && ip.Value != "" {
			v := ip.Value
			return &v
		}
		return nil
	}

	in.Title = prop(ics.ComponentPropertySummary)
	if in.Title == nil {
		return EventInput{}, fmt.Errorf("%w: VEVENT %s has no SUMMARY", ErrInvalidEvent, ve.Id())
	}
	in.Description = prop(ics.ComponentPropertyDescription)
	in.Location = prop(ics.ComponentPropertyLocation)
	in.URL = prop(ics.ComponentPropertyUrl)
	in.Category = prop(ics.ComponentPropertyCategories)
	in.Color = prop(ics.ComponentProperty("COLOR"))

	allDay := false
	if dt := ve.GetProperty(ics.ComponentPropertyDtStart); dt != nil {
		if vals, ok := dt.ICalParameters["VALUE"]; ok && len(vals) > 0 && strings.EqualFold(vals[0], "DATE") {
			allDay = true
		}
		if !strings.Contains(dt.Value, "T") {
			allDay = true
		}
	}
	var start, end time.Time
	var err error
	if allDay {
		start, err = ve.GetAllDayStartAt()
		if err == nil {
			end, err = ve.GetAllDayEndAt()
		}
	} else {
		start, err = ve.GetStartAt()
		if err == nil {
			end, err = ve.GetEndAt()
		}
	}
	if err != nil {
		return EventInput{}, fmt.Errorf("%w: VEVENT %s: %v", ErrInvalidEvent, ve.Id(), err)
	}
	in.StartTime = &start
	in.EndTime = &end
	in.AllDay = &allDay

	if rule := prop(ics.ComponentPropertyRrule); rule != nil {
		recurring := true
		in.IsRecurring = &recurring
		in.RecurrenceRule = rule
	}
	if status := prop(ics.ComponentPropertyStatus); status != nil {
		s := strings.ToLower(*status)
		in.Status = &s
	}
	if class := prop(ics.ComponentPropertyClass); class != nil {
		public := strings.EqualFold(*class, string(ics.ClassificationPublic))
		in.IsPublic = &public
	}
	return in, nil
}

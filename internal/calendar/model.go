package calendar

import (
	"log/slog"
	"time"
)

const (
	DefaultCategory = "general"
	DefaultColor    = "#3b82f6"
	DefaultStatus   = "confirmed"

	// CategoryAll is the filter sentinel meaning "any category".
	CategoryAll = "all"
)

// Event is the UI-facing shape of one calendar entry.
type Event struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	AllDay         bool      `json:"allDay"`
	Category       string    `json:"category"`
	Color          string    `json:"color"`
	Location       string    `json:"location"`
	URL            string    `json:"url"`
	Status         string    `json:"status"`
	IsPublic       bool      `json:"isPublic"`
	IsRecurring    bool      `json:"isRecurring"`
	RecurrenceRule *string   `json:"recurrenceRule"`
	SharedWith     []string  `json:"sharedWith"`
	UserID         string    `json:"userId"`
}

// EventInput carries the fields a caller submits. A nil field is absent:
// creation substitutes the default, a partial update leaves the column alone.
// RecurrenceRule pointing at "" clears the stored rule.
type EventInput struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	AllDay         *bool      `json:"allDay,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Color          *string    `json:"color,omitempty"`
	Location       *string    `json:"location,omitempty"`
	URL            *string    `json:"url,omitempty"`
	Status         *string    `json:"status,omitempty"`
	IsPublic       *bool      `json:"isPublic,omitempty"`
	IsRecurring    *bool      `json:"isRecurring,omitempty"`
	RecurrenceRule *string    `json:"recurrenceRule,omitempty"`
	SharedWith     []string   `json:"sharedWith,omitempty"`
	// UserID is accepted so clients can round-trip an Event, but it is never
	// written: the owner always comes from the authenticated principal.
	UserID *string `json:"userId,omitempty"`
}

// present returns the submitted values keyed by UI field name.
func (in EventInput) present() map[string]any {
	out := map[string]any{}
	putString := func(field string, v *string) {
		if v != nil {
			out[field] = *v
		}
	}
	putBool := func(field string, v *bool) {
		if v != nil {
			out[field] = *v
		}
	}
	putString("title", in.Title)
	putString("description", in.Description)
	if in.StartTime != nil {
		out["startTime"] = *in.StartTime
	}
	if in.EndTime != nil {
		out["endTime"] = *in.EndTime
	}
	putBool("allDay", in.AllDay)
	putString("category", in.Category)
	putString("color", in.Color)
	putString("location", in.Location)
	putString("url", in.URL)
	putString("status", in.Status)
	putBool("isPublic", in.IsPublic)
	putBool("isRecurring", in.IsRecurring)
	if in.RecurrenceRule != nil {
		if *in.RecurrenceRule == "" {
			out["recurrenceRule"] = nil
		} else {
			out["recurrenceRule"] = *in.RecurrenceRule
		}
	}
	if in.SharedWith != nil {
		shared := make([]string, len(in.SharedWith))
		copy(shared, in.SharedWith)
		out["sharedWith"] = shared
	}
	putString("userId", in.UserID)
	return out
}

func (in EventInput) LogValue() slog.Value {
	fields := in.present()
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range eventFields {
		if v, ok := fields[f.Field]; ok {
			attrs = append(attrs, slog.Any(f.Field, v))
		}
	}
	return slog.GroupValue(attrs...)
}

// Filters narrows ListEvents. Zero value lists everything the principal owns.
type Filters struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
}

func (f Filters) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	if f.StartDate != nil {
		attrs = append(attrs, slog.Time("startDate", *f.StartDate))
	}
	if f.EndDate != nil {
		attrs = append(attrs, slog.Time("endDate", *f.EndDate))
	}
	if f.Category != "" {
		attrs = append(attrs, slog.String("category", f.Category))
	}
	return slog.GroupValue(attrs...)
}

// CategorySummary is a derived, never persisted, category/color pair.
type CategorySummary struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Record is one row in storage form, keyed by column name.
type Record map[string]any

func (r Record) String(column string) string {
	s, _ := r[column].(string)
	return s
}

package calendar

import (
	"fmt"
	"strings"
	"time"
)

const (
	TableEvents = "events"

	ColumnID             = "id"
	ColumnTitle          = "title"
	ColumnDescription    = "description"
	ColumnStartTime      = "start_time"
	ColumnEndTime        = "end_time"
	ColumnAllDay         = "all_day"
	ColumnCategory       = "category"
	ColumnColor          = "color"
	ColumnLocation       = "location"
	ColumnURL            = "url"
	ColumnStatus         = "status"
	ColumnIsPublic       = "is_public"
	ColumnIsRecurring    = "is_recurring"
	ColumnRecurrenceRule = "recurrence_rule"
	ColumnSharedWith     = "shared_with"
	ColumnUserID         = "user_id"
)

// fieldMapping binds one UI field to its storage column. Both mapping
// directions are derived from eventFields.
type fieldMapping struct {
	Field    string
	Column   string
	Required bool
	// Default produces the value written on create when the field is absent.
	// Nil means the column is required, storage-assigned, or nullable.
	Default func() any
}

func constant(v any) func() any { return func() any { return v } }

var eventFields = []fieldMapping{
	{Field: "id", Column: ColumnID},
	{Field: "title", Column: ColumnTitle, Required: true},
	{Field: "description", Column: ColumnDescription, Default: constant("")},
	{Field: "startTime", Column: ColumnStartTime, Required: true},
	{Field: "endTime", Column: ColumnEndTime, Required: true},
	{Field: "allDay", Column: ColumnAllDay, Default: constant(false)},
	{Field: "category", Column: ColumnCategory, Default: constant(DefaultCategory)},
	{Field: "color", Column: ColumnColor, Default: constant(DefaultColor)},
	{Field: "location", Column: ColumnLocation, Default: constant("")},
	{Field: "url", Column: ColumnURL, Default: constant("")},
	{Field: "status", Column: ColumnStatus, Default: constant(DefaultStatus)},
	{Field: "isPublic", Column: ColumnIsPublic, Default: constant(false)},
	{Field: "isRecurring", Column: ColumnIsRecurring, Default: constant(false)},
	{Field: "recurrenceRule", Column: ColumnRecurrenceRule},
	{Field: "sharedWith", Column: ColumnSharedWith, Default: func() any { return []string{} }},
	{Field: "userId", Column: ColumnUserID},
}

// Columns lists the storage columns in table order.
func Columns() []string {
	out := make([]string, len(eventFields))
	for i, f := range eventFields {
		out[i] = f.Column
	}
	return out
}

func isColumn(name string) bool {
	for _, f := range eventFields {
		if f.Column == name {
			return true
		}
	}
	return false
}

// ToStorage turns a creation input into a full storage record. Absent
// optional fields take their defaults and user_id is always principalID,
// whatever the input carried. id is left for storage to assign.
func ToStorage(in EventInput, principalID string) (Record, error) {
	values := in.present()
	rec := make(Record, len(eventFields))
	for _, f := range eventFields {
		switch f.Column {
		case ColumnID:
			continue
		case ColumnUserID:
			rec[f.Column] = principalID
			continue
		}
		if v, ok := values[f.Field]; ok {
			rec[f.Column] = v
			continue
		}
		if f.Required {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidEvent, f.Field)
		}
		if f.Default != nil {
			rec[f.Column] = f.Default()
		} else {
			rec[f.Column] = nil
		}
	}
	if in.IsRecurring != nil {
		clearRuleIfNotRecurring(rec)
	}
	return rec, nil
}

// ToStoragePatch keeps only the submitted fields. Ownership and identity
// columns are never part of a patch.
func ToStoragePatch(in EventInput) Record {
	values := in.present()
	rec := Record{}
	for _, f := range eventFields {
		if f.Column == ColumnID || f.Column == ColumnUserID {
			continue
		}
		if v, ok := values[f.Field]; ok {
			rec[f.Column] = v
		}
	}
	clearRuleIfNotRecurring(rec)
	return rec
}

// clearRuleIfNotRecurring drops the rule when the input explicitly turns
// recurrence off, so no stale rule outlives is_recurring = false.
func clearRuleIfNotRecurring(rec Record) {
	if recurring, ok := rec[ColumnIsRecurring].(bool); ok && !recurring {
		rec[ColumnRecurrenceRule] = nil
	}
}

// FromStorage is the inverse of ToStorage. Columns missing from rec leave
// the zero value in place.
func FromStorage(rec Record) (Event, error) {
	var ev Event
	for _, f := range eventFields {
		v, ok := rec[f.Column]
		if !ok {
			continue
		}
		if err := ev.assign(f.Field, v); err != nil {
			return Event{}, fmt.Errorf("column %s: %w", f.Column, err)
		}
	}
	if ev.SharedWith == nil {
		ev.SharedWith = []string{}
	}
	return ev, nil
}

func (ev *Event) assign(field string, v any) error {
	switch field {
	case "id":
		return assignString(&ev.ID, v)
	case "title":
		return assignString(&ev.Title, v)
	case "description":
		return assignString(&ev.Description, v)
	case "startTime":
		return assignTime(&ev.StartTime, v)
	case "endTime":
		return assignTime(&ev.EndTime, v)
	case "allDay":
		return assignBool(&ev.AllDay, v)
	case "category":
		return assignString(&ev.Category, v)
	case "color":
		return assignString(&ev.Color, v)
	case "location":
		return assignString(&ev.Location, v)
	case "url":
		return assignString(&ev.URL, v)
	case "status":
		return assignString(&ev.Status, v)
	case "isPublic":
		return assignBool(&ev.IsPublic, v)
	case "isRecurring":
		return assignBool(&ev.IsRecurring, v)
	case "recurrenceRule":
		switch rule := v.(type) {
		case nil:
			ev.RecurrenceRule = nil
		case string:
			ev.RecurrenceRule = &rule
		case *string:
			ev.RecurrenceRule = rule
		default:
			return fmt.Errorf("unexpected %T", v)
		}
		return nil
	case "sharedWith":
		switch shared := v.(type) {
		case nil:
			ev.SharedWith = []string{}
		case []string:
			ev.SharedWith = append([]string{}, shared...)
		case []any:
			ev.SharedWith = make([]string, 0, len(shared))
			for _, item := range shared {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("unexpected element %T", item)
				}
				ev.SharedWith = append(ev.SharedWith, s)
			}
		default:
			return fmt.Errorf("unexpected %T", v)
		}
		return nil
	case "userId":
		return assignString(&ev.UserID, v)
	}
	return fmt.Errorf("unknown field %q", field)
}

func assignString(dst *string, v any) error {
	switch s := v.(type) {
	case nil:
		*dst = ""
	case string:
		*dst = s
	default:
		return fmt.Errorf("unexpected %T", v)
	}
	return nil
}

func assignBool(dst *bool, v any) error {
	switch b := v.(type) {
	case nil:
		*dst = false
	case bool:
		*dst = b
	default:
		return fmt.Errorf("unexpected %T", v)
	}
	return nil
}

func assignTime(dst *time.Time, v any) error {
	switch t := v.(type) {
	case time.Time:
		*dst = t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return err
		}
		*dst = parsed
	default:
		return fmt.Errorf("unexpected %T", v)
	}
	return nil
}

// validateInput checks what a write can check without reading the row.
func validateInput(in EventInput, creating bool) error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return fmt.Errorf("%w: title must not be blank", ErrInvalidEvent)
	}
	// A category is either absent (default on create, untouched on update)
	// or a real name; blank would be a non-null value with no name.
	if in.Category != nil && strings.TrimSpace(*in.Category) == "" {
		return fmt.Errorf("%w: category must not be blank", ErrInvalidEvent)
	}
	if creating {
		switch {
		case in.Title == nil:
			return fmt.Errorf("%w: title is required", ErrInvalidEvent)
		case in.StartTime == nil || in.StartTime.IsZero():
			return fmt.Errorf("%w: startTime is required", ErrInvalidEvent)
		case in.EndTime == nil || in.EndTime.IsZero():
			return fmt.Errorf("%w: endTime is required", ErrInvalidEvent)
		}
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		return ErrEndBeforeStart
	}
	if in.RecurrenceRule != nil && *in.RecurrenceRule != "" {
		if err := ValidateRecurrenceRule(*in.RecurrenceRule); err != nil {
			return fmt.Errorf("%w: recurrenceRule: %v", ErrInvalidEvent, err)
		}
	}
	return nil
}

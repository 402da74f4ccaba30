package calendarapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/planboard/project/internal/calendar"
)

const dateOnly = "2006-01-02"

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters calendar.Filters
	var err error
	if filters.StartDate, err = h.timeParam(q.Get("start"), false); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filters.EndDate, err = h.timeParam(q.Get("end"), true); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters.Category = q.Get("category")

	events, err := h.Calendar.ListEvents(r.Context(), filters)
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleUnitEvents(unit calendar.Unit) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := h.Calendar.GetEventsForUnit(r.Context(), unit)
		if err != nil {
			h.writeCalendarError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, events)
	}
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Calendar.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in calendar.EventInput
	if !h.decode(w, r, &in) {
		return
	}
	ev, err := h.Calendar.CreateEvent(r.Context(), in)
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in calendar.EventInput
	if !h.decode(w, r, &in) {
		return
	}
	ev, err := h.Calendar.UpdateEvent(r.Context(), chi.URLParam(r, "eventID"), in)
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Calendar.DeleteEvent(r.Context(), chi.URLParam(r, "eventID")); err != nil {
		h.writeCalendarError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	until, err := h.timeParam(q.Get("until"), true)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if until == nil {
		end := calendar.MonthRange(h.Calendar.LocalNow()).End
		until = &end
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	times, err := h.Calendar.PreviewOccurrences(r.Context(), chi.URLParam(r, "eventID"), *until, limit)
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"occurrences": times})
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Calendar.ListCategories(r.Context())
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, categories)
}

// handleExportCalendar defaults to the current month when no range is given.
func (h *Handler) handleExportCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := calendar.MonthRange(h.Calendar.LocalNow())
	start, err := h.timeParam(q.Get("start"), false)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := h.timeParam(q.Get("end"), true)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start == nil {
		start = &month.Start
	}
	if end == nil {
		end = &month.End
	}

	body, err := h.Calendar.ExportCalendar(r.Context(), h.CalendarName, *start, *end)
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) handleImportCalendar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	created, err := h.Calendar.ImportCalendar(r.Context(), r.Body)
	if err != nil {
		h.writeCalendarError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// timeParam accepts RFC 3339 instants or calendar dates. A date is read in
// the service location; as an upper bound it covers the whole day.
func (h *Handler) timeParam(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	loc := h.Calendar.Location
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(dateOnly, raw, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", raw)
	}
	if upper {
		day = calendar.DayRange(day).End
	}
	return &day, nil
}

package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/planboard/project/internal/logging"
	"github.com/planboard/project/internal/platform/auth"
	"github.com/planboard/project/internal/platform/metrics"
)

var operationsTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "planboard_calendar_operations_total",
	Help: "Calendar operations by name and outcome.",
}, []string{"operation", "outcome"})

func init() {
	metrics.Default.MustRegister(operationsTotal)
}

// Service is the calendar data-access layer. Every operation resolves the
// principal first and then issues exactly one statement to Store.
type Service struct {
	Store         Store
	Auth          Authenticator
	Logger        *slog.Logger
	Now           func() time.Time
	Location      *time.Location
	CategoryScope CategoryScope
}

func NewService(store Store, authn Authenticator) *Service {
	return &Service{
		Store:         store,
		Auth:          authn,
		Now:           time.Now,
		Location:      time.Local,
		CategoryScope: CategoryScopeOwner,
	}
}

// LocalNow is the service clock in the configured location.
func (s *Service) LocalNow() time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return s.Now().In(loc)
}

func (s *Service) logger(ctx context.Context, op string, attrs ...any) *slog.Logger {
	return logging.Operation(ctx, s.Logger, "calendar", op, attrs...)
}

// principal turns both a failed lookup and an absent principal into an
// AuthenticationError before any query is built.
func (s *Service) principal(ctx context.Context, op string, log *slog.Logger) (auth.Principal, error) {
	if s.Auth == nil {
		return s.fail(log, &AuthenticationError{Op: op, Err: auth.ErrNoPrincipal})
	}
	p, err := s.Auth.CurrentPrincipal(ctx)
	if err == nil && p.ID == "" {
		err = auth.ErrNoPrincipal
	}
	if err != nil {
		return s.fail(log, &AuthenticationError{Op: op, Err: err})
	}
	return p, nil
}

func (s *Service) fail(log *slog.Logger, err error) (auth.Principal, error) {
	log.Warn("calendar request not authenticated", "error", err)
	return auth.Principal{}, err
}

func (s *Service) storageError(log *slog.Logger, op string, err error) error {
	log.Error("calendar storage request failed", "error", err)
	return &StorageError{Op: op, Err: err}
}

// writeError keeps a store-side rejection of the row contents (a partial
// update that inverts the stored times) as ErrInvalidEvent.
func (s *Service) writeError(log *slog.Logger, op string, err error) error {
	if errors.Is(err, ErrInvalidEvent) {
		log.Info("calendar event rejected", "error", err)
		return err
	}
	return s.storageError(log, op, err)
}

func observe(op string, err error) {
	operationsTotal.WithLabelValues(op, Outcome(err)).Inc()
}

func (s *Service) ListEvents(ctx context.Context, filters Filters) ([]Event, error) {
	return s.listEvents(ctx, "list_events", filters)
}

func (s *Service) listEvents(ctx context.Context, op string, filters Filters) (events []Event, err error) {
	defer func() { observe(op, err) }()
	log := s.logger(ctx, op, "filters", filters)

	p, err := s.principal(ctx, op, log)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.Select(ctx, BuildEventQuery(p.ID, filters))
	if err != nil {
		return nil, s.storageError(log.With("principal", p.ID), op, err)
	}
	return s.decode(log, op, rows)
}

func (s *Service) decode(log *slog.Logger, op string, rows []Record) ([]Event, error) {
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev, err := FromStorage(row)
		if err != nil {
			return nil, s.storageError(log, op, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// GetEventsByDateRange lists the caller's events starting within
// [start, end], with no category filter.
func (s *Service) GetEventsByDateRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.listEvents(ctx, "get_events_by_date_range", Filters{StartDate: &start, EndDate: &end})
}

func (s *Service) GetEventsForUnit(ctx context.Context, unit Unit) ([]Event, error) {
	r, err := ResolveRange(unit, s.LocalNow())
	if err != nil {
		return nil, err
	}
	return s.listEvents(ctx, "get_"+string(unit)+"_events", Filters{StartDate: &r.Start, EndDate: &r.End})
}

func (s *Service) GetTodayEvents(ctx context.Context) ([]Event, error) {
	return s.GetEventsForUnit(ctx, UnitDay)
}

func (s *Service) GetWeekEvents(ctx context.Context) ([]Event, error) {
	return s.GetEventsForUnit(ctx, UnitWeek)
}

func (s *Service) GetMonthEvents(ctx context.Context) ([]Event, error) {
	return s.GetEventsForUnit(ctx, UnitMonth)
}

func (s *Service) GetEvent(ctx context.Context, id string) (ev Event, err error) {
	const op = "get_event"
	defer func() { observe(op, err) }()
	log := s.logger(ctx, op, "event_id", id)

	p, err := s.principal(ctx, op, log)
	if err != nil {
		return Event{}, err
	}
	rows, err := s.Store.Select(ctx, byID(p.ID, id).WithLimit(1))
	if err != nil {
		return Event{}, s.storageError(log, op, err)
	}
	if len(rows) == 0 {
		return Event{}, ErrNotFound
	}
	events, err := s.decode(log, op, rows)
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

// CreateEvent stores a new event owned by the caller. Defaults fill every
// absent optional field and any submitted userId is replaced.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (ev Event, err error) {
	const op = "create_event"
	defer func() { observe(op, err) }()
	log := s.logger(ctx, op, "input", in)

	p, err := s.principal(ctx, op, log)
	if err != nil {
		return Event{}, err
	}
	if err := validateInput(in, true); err != nil {
		log.Info("calendar event rejected", "error", err)
		return Event{}, err
	}
	rec, err := ToStorage(in, p.ID)
	if err != nil {
		return Event{}, err
	}
	row, err := s.Store.Insert(ctx, rec)
	if err != nil {
		return Event{}, s.writeError(log, op, err)
	}
	events, err := s.decode(log, op, []Record{row})
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

// UpdateEvent writes only the submitted fields. Zero matched rows, whether
// the id is unknown or owned by someone else, is ErrNotFound.
func (s *Service) UpdateEvent(ctx context.Context, id string, in EventInput) (ev Event, err error) {
	const op = "update_event"
	defer func() { observe(op, err) }()
	log := s.logger(ctx, op, "event_id", id, "input", in)

	p, err := s.principal(ctx, op, log)
	if err != nil {
		return Event{}, err
	}
	if err := validateInput(in, false); err != nil {
		log.Info("calendar event rejected", "error", err)
		return Event{}, err
	}
	rows, err := s.Store.Update(ctx, byID(p.ID, id), ToStoragePatch(in))
	if err != nil {
		return Event{}, s.writeError(log, op, err)
	}
	if len(rows) == 0 {
		log.Info("calendar update matched no owned row")
		return Event{}, ErrNotFound
	}
	events, err := s.decode(log, op, rows[:1])
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

func (s *Service) DeleteEvent(ctx context.Context, id string) (err error) {
	const op = "delete_event"
	defer func() { observe(op, err) }()
	log := s.logger(ctx, op, "event_id", id)

	p, err := s.principal(ctx, op, log)
	if err != nil {
		return err
	}
	rows, err := s.Store.Delete(ctx, byID(p.ID, id))
	if err != nil {
		return s.storageError(log, op, err)
	}
	if len(rows) == 0 {
		log.Info("calendar delete matched no owned row")
		return ErrNotFound
	}
	return nil
}

// ListCategories returns one summary per distinct category, in first-seen
// start-time order. CategoryScope decides whether other principals' rows
// count.
func (s *Service) ListCategories(ctx context.Context) (out []CategorySummary, err error) {
	const op = "list_categories"
	defer func() { observe(op, err) }()
	log := s.logger(ctx, op, "scope", s.CategoryScope)

	p, err := s.principal(ctx, op, log)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.Select(ctx, categoryQuery(s.CategoryScope, p.ID))
	if err != nil {
		return nil, s.storageError(log, op, err)
	}
	events, err := s.decode(log, op, rows)
	if err != nil {
		return nil, err
	}
	return AggregateCategories(events), nil
}

// ExportCalendar renders the caller's events starting within [start, end]
// as iCalendar text.
func (s *Service) ExportCalendar(ctx context.Context, name string, start, end time.Time) (string, error) {
	events, err := s.listEvents(ctx, "export_calendar", Filters{StartDate: &start, EndDate: &end})
	if err != nil {
		return "", err
	}
	return ExportICS(name, events, s.Now()), nil
}

// ImportCalendar creates one event per VEVENT in r, stopping at the first
// failure. Events created before the failure stay stored.
func (s *Service) ImportCalendar(ctx context.Context, r io.Reader) ([]Event, error) {
	inputs, err := ParseICS(r)
	if err != nil {
		return nil, err
	}
	created := make([]Event, 0, len(inputs))
	for i, in := range inputs {
		ev, err := s.CreateEvent(ctx, in)
		if err != nil {
			return created, fmt.Errorf("import event %d: %w", i, err)
		}
		created = append(created, ev)
	}
	return created, nil
}

// PreviewOccurrences expands the recurrence rule of one owned event up to
// until.
func (s *Service) PreviewOccurrences(ctx context.Context, id string, until time.Time, limit int) ([]time.Time, error) {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	times, err := Occurrences(ev, until, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recurrenceRule: %v", ErrInvalidEvent, err)
	}
	return times, nil
}

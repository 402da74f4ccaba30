package calendar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/planboard/project/internal/platform/auth"
)

type fakeAuth struct {
	principal auth.Principal
	err       error
}

func (f *fakeAuth) CurrentPrincipal(context.Context) (auth.Principal, error) {
	return f.principal, f.err
}

// failingStore errors on every call and counts how often it was reached.
type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Select(context.Context, Query) ([]Record, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) Insert(context.Context, Record) (Record, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) Update(context.Context, Query, Record) ([]Record, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) Delete(context.Context, Query) ([]Record, error) {
	f.calls++
	return nil, f.err
}

var wednesday = time.Date(2024, 1, 17, 14, 30, 0, 0, time.UTC)

func newTestService(userID string) (*Service, *fakeAuth) {
	authn := &fakeAuth{principal: auth.Principal{ID: userID, Username: userID}}
	svc := NewService(NewMemoryStore(), authn)
	svc.Now = func() time.Time { return wednesday }
	svc.Location = time.UTC
	return svc, authn
}

func input(title string, start time.Time, category string) EventInput {
	end := start.Add(time.Hour)
	in := EventInput{Title: &title, StartTime: &start, EndTime: &end}
	if category != "" {
		in.Category = &category
	}
	return in
}

func mustCreate(t *testing.T, svc *Service, in EventInput) Event {
	t.Helper()
	ev, err := svc.CreateEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	return ev
}

func TestCreateEvent_AppliesDefaultsAndOwner(t *testing.T) {
	svc, _ := newTestService("user-1")
	in := input("Standup", wednesday, "")
	in.UserID = ptr("user-2")

	ev := mustCreate(t, svc, in)
	if ev.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if ev.UserID != "user-1" {
		t.Fatalf("owner must come from the principal, got %q", ev.UserID)
	}
	if ev.Category != DefaultCategory || ev.Color != DefaultColor || ev.Status != DefaultStatus {
		t.Fatalf("defaults not applied: %+v", ev)
	}
	if ev.SharedWith == nil || len(ev.SharedWith) != 0 || ev.RecurrenceRule != nil {
		t.Fatalf("unexpected optional fields: %+v", ev)
	}
}

func TestService_UnauthenticatedNeverReachesStore(t *testing.T) {
	store := &failingStore{err: errors.New("should not be called")}
	cases := map[string]*fakeAuth{
		"lookup error":     {err: errors.New("session expired")},
		"absent principal": {},
		"principal no id":  {principal: auth.Principal{Username: "ghost"}},
	}
	for name, authn := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(store, authn)
			ctx := context.Background()

			_, err := svc.ListEvents(ctx, Filters{})
			if !IsAuthentication(err) {
				t.Fatalf("ListEvents: expected AuthenticationError, got %v", err)
			}
			if _, err := svc.CreateEvent(ctx, input("x", wednesday, "")); !IsAuthentication(err) {
				t.Fatalf("CreateEvent: expected AuthenticationError, got %v", err)
			}
			if err := svc.DeleteEvent(ctx, "evt"); !IsAuthentication(err) {
				t.Fatalf("DeleteEvent: expected AuthenticationError, got %v", err)
			}
			if _, err := svc.ListCategories(ctx); !IsAuthentication(err) {
				t.Fatalf("ListCategories: expected AuthenticationError, got %v", err)
			}
		})
	}
	if store.calls != 0 {
		t.Fatalf("store reached %d times without a principal", store.calls)
	}
}

func TestService_StorageErrorKeepsBackendError(t *testing.T) {
	backend := errors.New("connection reset")
	svc := NewService(&failingStore{err: backend}, &fakeAuth{principal: auth.Principal{ID: "user-1"}})

	_, err := svc.ListEvents(context.Background(), Filters{})
	if !IsStorage(err) || !errors.Is(err, backend) {
		t.Fatalf("expected StorageError wrapping backend error, got %v", err)
	}
	if Outcome(err) != "storage_error" {
		t.Fatalf("unexpected outcome %q", Outcome(err))
	}
}

func TestGetEventsByDateRange_ClosedIntervalSorted(t *testing.T) {
	svc, _ := newTestService("user-1")
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	mustCreate(t, svc, input("late", end, ""))
	mustCreate(t, svc, input("middle", start.Add(48*time.Hour), ""))
	mustCreate(t, svc, input("early", start, ""))
	mustCreate(t, svc, input("outside", end.Add(time.Second), ""))
	mustCreate(t, svc, input("before", start.Add(-time.Second), ""))

	events, err := svc.GetEventsByDateRange(context.Background(), start, end)
	if err != nil {
		t.Fatalf("GetEventsByDateRange returned error: %v", err)
	}
	var titles []string
	for _, ev := range events {
		titles = append(titles, ev.Title)
	}
	if strings.Join(titles, ",") != "early,middle,late" {
		t.Fatalf("unexpected events: %v", titles)
	}
}

func TestListEvents_OnlyOwnRows(t *testing.T) {
	svc, authn := newTestService("user-1")
	mustCreate(t, svc, input("mine", wednesday, ""))
	authn.principal = auth.Principal{ID: "user-2"}
	mustCreate(t, svc, input("theirs", wednesday, ""))

	authn.principal = auth.Principal{ID: "user-1"}
	events, err := svc.ListEvents(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 || events[0].Title != "mine" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestListEvents_EmptyIsNotNil(t *testing.T) {
	svc, _ := newTestService("user-1")
	events, err := svc.ListEvents(context.Background(), Filters{Category: "nothing"})
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", events)
	}
}

func TestListEvents_CategoryFilter(t *testing.T) {
	svc, _ := newTestService("user-1")
	mustCreate(t, svc, input("a", wednesday, "work"))
	mustCreate(t, svc, input("b", wednesday.Add(time.Hour), "home"))

	work, err := svc.ListEvents(context.Background(), Filters{Category: "work"})
	if err != nil || len(work) != 1 || work[0].Title != "a" {
		t.Fatalf("unexpected work events: %+v, %v", work, err)
	}
	all, err := svc.ListEvents(context.Background(), Filters{Category: CategoryAll})
	if err != nil || len(all) != 2 {
		t.Fatalf("category=all should list everything: %+v, %v", all, err)
	}
}

func TestGetTodayWeekMonth(t *testing.T) {
	svc, _ := newTestService("user-1")
	mustCreate(t, svc, input("today", time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC), ""))
	mustCreate(t, svc, input("saturday", time.Date(2024, 1, 20, 23, 0, 0, 0, time.UTC), ""))
	mustCreate(t, svc, input("month end", time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC), ""))
	mustCreate(t, svc, input("next month", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), ""))

	ctx := context.Background()
	cases := []struct {
		name string
		fn   func(context.Context) ([]Event, error)
		want int
	}{
		{"today", svc.GetTodayEvents, 1},
		{"week", svc.GetWeekEvents, 2},
		{"month", svc.GetMonthEvents, 3},
	}
	for _, tc := range cases {
		events, err := tc.fn(ctx)
		if err != nil {
			t.Fatalf("%s returned error: %v", tc.name, err)
		}
		if len(events) != tc.want {
			t.Fatalf("%s: got %d events want %d", tc.name, len(events), tc.want)
		}
	}
}

func TestUpdateEvent_PartialAndOwnerScoped(t *testing.T) {
	svc, authn := newTestService("user-1")
	ev := mustCreate(t, svc, input("Standup", wednesday, "work"))

	updated, err := svc.UpdateEvent(context.Background(), ev.ID, EventInput{Title: ptr("Retro"), UserID: ptr("user-2")})
	if err != nil {
		t.Fatalf("UpdateEvent returned error: %v", err)
	}
	if updated.Title != "Retro" || updated.Category != "work" || updated.UserID != "user-1" {
		t.Fatalf("unexpected updated event: %+v", updated)
	}

	authn.principal = auth.Principal{ID: "user-2"}
	if _, err := svc.UpdateEvent(context.Background(), ev.ID, EventInput{Title: ptr("Hijack")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign update: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEvent_RejectsInvalid(t *testing.T) {
	svc, _ := newTestService("user-1")
	ev := mustCreate(t, svc, input("Standup", wednesday, ""))
	_, err := svc.UpdateEvent(context.Background(), ev.ID, EventInput{Title: ptr("")})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestDeleteEvent(t *testing.T) {
	svc, authn := newTestService("user-1")
	ev := mustCreate(t, svc, input("Standup", wednesday, ""))

	authn.principal = auth.Principal{ID: "user-2"}
	if err := svc.DeleteEvent(context.Background(), ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete: expected ErrNotFound, got %v", err)
	}

	authn.principal = auth.Principal{ID: "user-1"}
	if err := svc.DeleteEvent(context.Background(), ev.ID); err != nil {
		t.Fatalf("DeleteEvent returned error: %v", err)
	}
	if _, err := svc.GetEvent(context.Background(), ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted event still readable: %v", err)
	}
	if err := svc.DeleteEvent(context.Background(), ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestListCategories(t *testing.T) {
	svc, authn := newTestService("user-1")

	empty, err := svc.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories returned error: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}

	work := input("a", wednesday, "work")
	work.Color = ptr("#111111")
	mustCreate(t, svc, work)
	again := input("b", wednesday.Add(time.Hour), "work")
	again.Color = ptr("#222222")
	mustCreate(t, svc, again)
	mustCreate(t, svc, input("c", wednesday.Add(2*time.Hour), "home"))

	authn.principal = auth.Principal{ID: "user-2"}
	mustCreate(t, svc, input("d", wednesday.Add(-time.Hour), "travel"))

	authn.principal = auth.Principal{ID: "user-1"}
	owned, err := svc.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories returned error: %v", err)
	}
	want := []CategorySummary{{Name: "work", Color: "#111111"}, {Name: "home", Color: DefaultColor}}
	if len(owned) != len(want) || owned[0] != want[0] || owned[1] != want[1] {
		t.Fatalf("unexpected owner-scoped categories: %+v", owned)
	}

	svc.CategoryScope = CategoryScopeGlobal
	global, err := svc.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories returned error: %v", err)
	}
	if len(global) != 3 || global[0].Name != "travel" {
		t.Fatalf("unexpected global categories: %+v", global)
	}
}

func TestExportAndImportCalendar(t *testing.T) {
	svc, authn := newTestService("user-1")
	mustCreate(t, svc, input("Standup", wednesday, "work"))

	text, err := svc.ExportCalendar(context.Background(), "Work", wednesday.Add(-time.Hour), wednesday.Add(time.Hour))
	if err != nil {
		t.Fatalf("ExportCalendar returned error: %v", err)
	}
	if !strings.Contains(text, "SUMMARY:Standup") {
		t.Fatalf("export missing event:\n%s", text)
	}

	authn.principal = auth.Principal{ID: "user-2"}
	created, err := svc.ImportCalendar(context.Background(), strings.NewReader(text))
	if err != nil {
		t.Fatalf("ImportCalendar returned error: %v", err)
	}
	if len(created) != 1 || created[0].Title != "Standup" || created[0].UserID != "user-2" || created[0].Category != "work" {
		t.Fatalf("unexpected imported events: %+v", created)
	}
	if !created[0].StartTime.Equal(wednesday) {
		t.Fatalf("start not preserved: %v", created[0].StartTime)
	}
}

func TestPreviewOccurrences(t *testing.T) {
	svc, _ := newTestService("user-1")
	in := input("Gym", wednesday, "")
	in.IsRecurring = ptr(true)
	in.RecurrenceRule = ptr("FREQ=DAILY")
	ev := mustCreate(t, svc, in)

	times, err := svc.PreviewOccurrences(context.Background(), ev.ID, wednesday.Add(72*time.Hour), 0)
	if err != nil {
		t.Fatalf("PreviewOccurrences returned error: %v", err)
	}
	if len(times) != 4 {
		t.Fatalf("expected 4 occurrences, got %v", times)
	}
}

func TestService_RecordsOutcomeMetric(t *testing.T) {
	svc, _ := newTestService("user-1")
	before := operationsTotal.Value("delete_event", "not_found")
	_ = svc.DeleteEvent(context.Background(), "missing")
	if got := operationsTotal.Value("delete_event", "not_found"); got != before+1 {
		t.Fatalf("metric not incremented: before %v after %v", before, got)
	}
}

func TestUpdateEvent_StartOnlyPatchPastStoredEndIsInvalid(t *testing.T) {
	svc, _ := newTestService("user-1")
	ev := mustCreate(t, svc, input("Standup", wednesday, ""))

	late := ev.EndTime.Add(5 * time.Hour)
	_, err := svc.UpdateEvent(context.Background(), ev.ID, EventInput{StartTime: &late})
	if !errors.Is(err, ErrInvalidEvent) || !errors.Is(err, ErrEndBeforeStart) {
		t.Fatalf("expected ErrEndBeforeStart, got %v", err)
	}
	if IsStorage(err) {
		t.Fatalf("time-order rejection must not be a StorageError: %v", err)
	}

	stored, err := svc.GetEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEvent returned error: %v", err)
	}
	if !stored.StartTime.Equal(ev.StartTime) || stored.EndTime.Before(stored.StartTime) {
		t.Fatalf("rejected patch changed the event: %+v", stored)
	}
}

func TestCategory_BlankIsRejected(t *testing.T) {
	svc, _ := newTestService("user-1")
	ev := mustCreate(t, svc, input("Standup", wednesday, "work"))

	if _, err := svc.CreateEvent(context.Background(), input("Gym", wednesday, " ")); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("blank category on create: expected ErrInvalidEvent, got %v", err)
	}
	if _, err := svc.UpdateEvent(context.Background(), ev.ID, EventInput{Category: ptr("")}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("blank category on update: expected ErrInvalidEvent, got %v", err)
	}

	categories, err := svc.ListCategories(context.Background())
	if err != nil || len(categories) != 1 || categories[0].Name != "work" {
		t.Fatalf("unexpected categories: %+v %v", categories, err)
	}
}

func TestAggregateCategories_KeepsEveryNonNullName(t *testing.T) {
	got := AggregateCategories([]Event{
		{Category: "", Color: "#000000"},
		{Category: "work", Color: "#111111"},
		{Category: "", Color: "#222222"},
	})
	want := []CategorySummary{{Name: "", Color: "#000000"}, {Name: "work", Color: "#111111"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("AggregateCategories = %+v, want %+v", got, want)
	}
}

func TestUpdateEvent_DisablingRecurrenceStopsOccurrences(t *testing.T) {
	svc, _ := newTestService("user-1")
	in := input("Daily", wednesday, "")
	in.IsRecurring = ptr(true)
	in.RecurrenceRule = ptr("FREQ=DAILY")
	ev := mustCreate(t, svc, in)

	updated, err := svc.UpdateEvent(context.Background(), ev.ID, EventInput{IsRecurring: ptr(false)})
	if err != nil {
		t.Fatalf("UpdateEvent returned error: %v", err)
	}
	if updated.IsRecurring || updated.RecurrenceRule != nil {
		t.Fatalf("rule should be cleared: %+v", updated)
	}
	times, err := svc.PreviewOccurrences(context.Background(), ev.ID, wednesday.AddDate(0, 0, 7), 0)
	if err != nil || len(times) != 1 {
		t.Fatalf("expected only the event's own start, got %v %v", times, err)
	}
}

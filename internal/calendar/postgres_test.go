package calendar

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestRenderSelect(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := BuildEventQuery("user-1", Filters{StartDate: &start, Category: "work"}).WithLimit(5)

	sql, args, err := renderSelect(q)
	if err != nil {
		t.Fatalf("renderSelect returned error: %v", err)
	}
	wantTail := " FROM events WHERE user_id = $1 AND start_time >= $2 AND category = $3 ORDER BY start_time ASC LIMIT $4"
	if !strings.HasSuffix(sql, wantTail) {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if !strings.HasPrefix(sql, "SELECT id, title, description, start_time") {
		t.Fatalf("unexpected column list: %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"user-1", start, "work", 5}) {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestRenderSelect_NotNull(t *testing.T) {
	sql, args, err := renderSelect(categoryQuery(CategoryScopeGlobal, "user-1"))
	if err != nil {
		t.Fatalf("renderSelect returned error: %v", err)
	}
	if !strings.HasSuffix(sql, " WHERE category IS NOT NULL ORDER BY start_time ASC") {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if len(args) != 0 {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestRenderUpdate_NumbersSetBeforeWhere(t *testing.T) {
	sql, args, err := renderUpdate(byID("user-1", "evt-1"), Record{ColumnTitle: "New", ColumnColor: "#000"})
	if err != nil {
		t.Fatalf("renderUpdate returned error: %v", err)
	}
	want := "UPDATE events SET title = $1, color = $2, updated_at = now() WHERE user_id = $3 AND id = $4 RETURNING "
	if !strings.HasPrefix(sql, want) {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"New", "#000", "user-1", "evt-1"}) {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestRenderUpdate_RejectsOwnerChangeAndUnknownColumns(t *testing.T) {
	if _, _, err := renderUpdate(byID("u", "e"), Record{ColumnUserID: "other"}); err == nil {
		t.Fatalf("expected user_id to be immutable")
	}
	if _, _, err := renderUpdate(byID("u", "e"), Record{"owner": "other"}); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestRenderInsert_CoversEveryColumn(t *testing.T) {
	row := Record{}
	for _, col := range Columns() {
		row[col] = col
	}
	sql, args := renderInsert(row)
	if len(args) != len(Columns()) {
		t.Fatalf("expected %d args, got %d", len(Columns()), len(args))
	}
	if !strings.Contains(sql, "VALUES ($1, $2,") || !strings.Contains(sql, " RETURNING id, title,") {
		t.Fatalf("unexpected SQL: %s", sql)
	}
}

func TestTranslateWriteError(t *testing.T) {
	timeOrder := &pgconn.PgError{Code: "23514", ConstraintName: "events_time_order"}
	if err := translateWriteError(timeOrder); !errors.Is(err, ErrEndBeforeStart) || !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrEndBeforeStart, got %v", err)
	}

	other := &pgconn.PgError{Code: "23505", ConstraintName: "events_pkey"}
	if err := translateWriteError(other); err != error(other) {
		t.Fatalf("unrelated error should pass through, got %v", err)
	}
	boom := errors.New("connection reset")
	if err := translateWriteError(boom); err != boom {
		t.Fatalf("non-Postgres error should pass through, got %v", err)
	}
}

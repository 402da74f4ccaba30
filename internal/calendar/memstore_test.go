package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fullRecord(id, owner string, start time.Time) Record {
	rec, _ := ToStorage(input("t-"+id, start, ""), owner)
	rec[ColumnID] = id
	return rec
}

func TestMemoryStore_InsertRejectsMissingColumns(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Insert(context.Background(), Record{ColumnTitle: "x"}); err == nil {
		t.Fatalf("expected error for partial record")
	}
}

func TestMemoryStore_InsertRejectsDuplicateID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Insert(ctx, fullRecord("a", "u1", wednesday)); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if _, err := store.Insert(ctx, fullRecord("a", "u1", wednesday)); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestMemoryStore_NullNeverMatchesComparison(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := fullRecord("a", "u1", wednesday)
	rec[ColumnCategory] = nil
	if _, err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	rows, err := store.Select(ctx, Query{}.NotNull(ColumnCategory))
	if err != nil || len(rows) != 0 {
		t.Fatalf("NULL category matched not-null: %v %v", rows, err)
	}
	rows, err = store.Select(ctx, Query{}.Eq(ColumnCategory, DefaultCategory))
	if err != nil || len(rows) != 0 {
		t.Fatalf("NULL category matched eq: %v %v", rows, err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Insert(ctx, fullRecord("a", "u1", wednesday)); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	rows, _ := store.Select(ctx, Query{})
	rows[0][ColumnTitle] = "mutated"

	again, _ := store.Select(ctx, Query{})
	if again[0].String(ColumnTitle) != "t-a" {
		t.Fatalf("store row changed through returned record: %v", again[0])
	}
}

func TestMemoryStore_UpdateAndDeleteReturnAffectedRows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := store.Insert(ctx, fullRecord(id, "u1", wednesday)); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	rows, err := store.Update(ctx, byID("u1", "b"), Record{ColumnColor: "#000"})
	if err != nil || len(rows) != 1 || rows[0].String(ColumnColor) != "#000" {
		t.Fatalf("unexpected update result: %v %v", rows, err)
	}
	rows, err = store.Update(ctx, byID("u2", "b"), Record{ColumnColor: "#fff"})
	if err != nil || len(rows) != 0 {
		t.Fatalf("foreign update matched: %v %v", rows, err)
	}

	rows, err = store.Delete(ctx, ownerQuery("u1"))
	if err != nil || len(rows) != 2 {
		t.Fatalf("unexpected delete result: %v %v", rows, err)
	}
	if left, _ := store.Select(ctx, Query{}); len(left) != 0 {
		t.Fatalf("rows left after delete: %v", left)
	}
}

func TestMemoryStore_UpdateRejectsInvertedTimes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := store.Insert(ctx, fullRecord(id, "u1", wednesday)); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	_, err := store.Update(ctx, ownerQuery("u1"), Record{ColumnStartTime: wednesday.Add(3 * time.Hour)})
	if !errors.Is(err, ErrEndBeforeStart) {
		t.Fatalf("expected ErrEndBeforeStart, got %v", err)
	}
	rows, _ := store.Select(ctx, Query{})
	for _, row := range rows {
		if !row[ColumnStartTime].(time.Time).Equal(wednesday) {
			t.Fatalf("failed update modified row %s", row.String(ColumnID))
		}
	}

	rec := fullRecord("c", "u1", wednesday)
	rec[ColumnEndTime] = wednesday.Add(-time.Minute)
	if _, err := store.Insert(ctx, rec); !errors.Is(err, ErrEndBeforeStart) {
		t.Fatalf("expected insert to reject inverted times, got %v", err)
	}
}

package calendar

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for local runs without Postgres. It
// evaluates Query the same way the SQL rendering does.
type MemoryStore struct {
	NewID func() string

	mu   sync.Mutex
	rows []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{NewID: uuid.NewString}
}

func (m *MemoryStore) Select(_ context.Context, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0)
	for _, row := range m.rows {
		if matches(row, q.Predicates) {
			out = append(out, cloneRecord(row))
		}
	}
	sortRecords(out, q.OrderBy)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, rec Record) (Record, error) {
	row := cloneRecord(rec)
	for _, col := range Columns() {
		if _, ok := row[col]; !ok && col != ColumnID {
			return nil, fmt.Errorf("insert: missing column %s", col)
		}
	}
	if err := checkTimeOrder(row); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.String(ColumnID) == "" {
		row[ColumnID] = m.NewID()
	}
	for _, existing := range m.rows {
		if existing.String(ColumnID) == row.String(ColumnID) {
			return nil, fmt.Errorf("insert: duplicate id %s", row.String(ColumnID))
		}
	}
	m.rows = append(m.rows, row)
	return cloneRecord(row), nil
}

func (m *MemoryStore) Update(_ context.Context, q Query, changes Record) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	for col := range changes {
		if !isColumn(col) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Build every updated row first so a violating row leaves the store
	// untouched, as a failed UPDATE statement would.
	type pending struct {
		idx int
		row Record
	}
	var updated []pending
	for i, row := range m.rows {
		if !matches(row, q.Predicates) {
			continue
		}
		next := cloneRecord(row)
		for col, v := range changes {
			next[col] = v
		}
		if err := checkTimeOrder(next); err != nil {
			return nil, err
		}
		updated = append(updated, pending{idx: i, row: next})
	}

	out := make([]Record, 0, len(updated))
	for _, u := range updated {
		m.rows[u.idx] = u.row
		out = append(out, cloneRecord(u.row))
	}
	return out, nil
}

// checkTimeOrder mirrors the events_time_order table constraint.
func checkTimeOrder(row Record) error {
	start, ok1 := row[ColumnStartTime].(time.Time)
	end, ok2 := row[ColumnEndTime].(time.Time)
	if ok1 && ok2 && end.Before(start) {
		return ErrEndBeforeStart
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0)
	kept := m.rows[:0]
	for _, row := range m.rows {
		if matches(row, q.Predicates) {
			out = append(out, row)
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return out, nil
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if s, ok := v.([]string); ok {
			v = slices.Clone(s)
		}
		out[k] = v
	}
	return out
}

func matches(row Record, preds []Predicate) bool {
	for _, p := range preds {
		v := row[p.Column]
		if p.Op == OpNotNull {
			if v == nil {
				return false
			}
			continue
		}
		c, ok := compareValues(v, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		case OpLte:
			if c > 0 {
				return false
			}
		}
	}
	return true
}

// compareValues orders two scalar column values; ok is false when they are
// not comparable (different types or NULL), mirroring SQL's NULL semantics.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func sortRecords(rows []Record, order []Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c, ok := compareValues(rows[i][o.Column], rows[j][o.Column])
			if !ok || c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

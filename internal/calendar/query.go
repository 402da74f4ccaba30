package calendar

import (
	"fmt"
	"slices"
	"strings"
)

type Op string

const (
	OpEq      Op = "eq"
	OpGte     Op = "gte"
	OpLte     Op = "lte"
	OpNotNull Op = "not_null"
)

type Predicate struct {
	Column string
	Op     Op
	Value  any
}

type Order struct {
	Column string
	Desc   bool
}

// Query is a table-scoped selection over events. Builder methods return a
// copy, so a base query can be extended more than once.
type Query struct {
	Predicates []Predicate
	OrderBy    []Order
	Limit      int
}

func (q Query) where(column string, op Op, value any) Query {
	q.Predicates = append(slices.Clone(q.Predicates), Predicate{Column: column, Op: op, Value: value})
	return q
}

func (q Query) Eq(column string, value any) Query  { return q.where(column, OpEq, value) }
func (q Query) Gte(column string, value any) Query { return q.where(column, OpGte, value) }
func (q Query) Lte(column string, value any) Query { return q.where(column, OpLte, value) }
func (q Query) NotNull(column string) Query        { return q.where(column, OpNotNull, nil) }

func (q Query) OrderAsc(column string) Query {
	q.OrderBy = append(slices.Clone(q.OrderBy), Order{Column: column})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Validate rejects columns outside the field table and unknown operators.
func (q Query) Validate() error {
	for _, p := range q.Predicates {
		if !isColumn(p.Column) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, p.Column)
		}
		switch p.Op {
		case OpEq, OpGte, OpLte, OpNotNull:
		default:
			return fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	for _, o := range q.OrderBy {
		if !isColumn(o.Column) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, o.Column)
		}
	}
	return nil
}

func (q Query) String() string {
	parts := make([]string, 0, len(q.Predicates)+len(q.OrderBy))
	for _, p := range q.Predicates {
		if p.Op == OpNotNull {
			parts = append(parts, p.Column+" not_null")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value))
	}
	for _, o := range q.OrderBy {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		parts = append(parts, "order "+o.Column+" "+dir)
	}
	return strings.Join(parts, "; ")
}

// ownerQuery scopes every statement to one principal's rows.
func ownerQuery(principalID string) Query {
	return Query{}.Eq(ColumnUserID, principalID)
}

// BuildEventQuery composes the owner scope with the optional filters and the
// fixed ascending start-time order.
func BuildEventQuery(principalID string, f Filters) Query {
	q := ownerQuery(principalID)
	if f.StartDate != nil {
		q = q.Gte(ColumnStartTime, *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Lte(ColumnStartTime, *f.EndDate)
	}
	if c := strings.TrimSpace(f.Category); c != "" && c != CategoryAll {
		q = q.Eq(ColumnCategory, c)
	}
	return q.OrderAsc(ColumnStartTime)
}

func byID(principalID, id string) Query {
	return ownerQuery(principalID).Eq(ColumnID, id)
}

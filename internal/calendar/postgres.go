package calendar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// checkViolation is the Postgres SQLSTATE for a failed CHECK constraint.
const checkViolation = "23514"

const timeOrderConstraint = "events_time_order"

// translateWriteError maps the time-order CHECK failure onto
// ErrEndBeforeStart. Other errors pass through unchanged.
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == checkViolation && pgErr.ConstraintName == timeOrderConstraint {
		return fmt.Errorf("%w (%s)", ErrEndBeforeStart, pgErr.ConstraintName)
	}
	return err
}

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
  id text PRIMARY KEY,
  title text NOT NULL,
  description text NOT NULL DEFAULT '',
  start_time timestamptz NOT NULL,
  end_time timestamptz NOT NULL,
  all_day boolean NOT NULL DEFAULT false,
  category text DEFAULT 'general',
  color text NOT NULL DEFAULT '#3b82f6',
  location text NOT NULL DEFAULT '',
  url text NOT NULL DEFAULT '',
  status text NOT NULL DEFAULT 'confirmed',
  is_public boolean NOT NULL DEFAULT false,
  is_recurring boolean NOT NULL DEFAULT false,
  recurrence_rule text,
  shared_with text[] NOT NULL DEFAULT '{}',
  user_id text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now(),
  CONSTRAINT events_time_order CHECK (end_time >= start_time)
)`

const createEventsOwnerStartIndexSQL = `
CREATE INDEX IF NOT EXISTS events_user_start_idx
ON events (user_id, start_time)`

const createEventsCategoryIndexSQL = `
CREATE INDEX IF NOT EXISTS events_category_idx
ON events (category) WHERE category IS NOT NULL`

var sqlOperators = map[Op]string{
	OpEq:  "=",
	OpGte: ">=",
	OpLte: "<=",
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresStore struct {
	Pool  *pgxpool.Pool
	NewID func() string
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool, NewID: uuid.NewString}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createEventsTableSQL, createEventsOwnerStartIndexSQL, createEventsCategoryIndexSQL} {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Select(ctx context.Context, q Query) ([]Record, error) {
	sql, args, err := renderSelect(q)
	if err != nil {
		return nil, err
	}
	return collect(ctx, s.Pool, sql, args)
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	row := cloneRecord(rec)
	if row.String(ColumnID) == "" {
		row[ColumnID] = s.NewID()
	}
	sql, args := renderInsert(row)
	rows, err := collect(ctx, s.Pool, sql, args)
	if err != nil {
		return nil, translateWriteError(err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("insert returned %d rows", len(rows))
	}
	return rows[0], nil
}

func (s *PostgresStore) Update(ctx context.Context, q Query, changes Record) ([]Record, error) {
	sql, args, err := renderUpdate(q, changes)
	if err != nil {
		return nil, err
	}
	rows, err := collect(ctx, s.Pool, sql, args)
	if err != nil {
		return nil, translateWriteError(err)
	}
	return rows, nil
}

func (s *PostgresStore) Delete(ctx context.Context, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	where, args := renderWhere(q.Predicates, nil)
	sql := "DELETE FROM " + TableEvents + where + " RETURNING " + strings.Join(Columns(), ", ")
	return collect(ctx, s.Pool, sql, args)
}

func renderSelect(q Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(Columns(), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(TableEvents)
	where, args := renderWhere(q.Predicates, nil)
	sb.WriteString(where)
	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			parts = append(parts, o.Column+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return sb.String(), args, nil
}

// renderWhere appends placeholders after any args already bound.
func renderWhere(preds []Predicate, args []any) (string, []any) {
	if len(preds) == 0 {
		return "", args
	}
	clauses := make([]string, 0, len(preds))
	for _, p := range preds {
		if p.Op == OpNotNull {
			clauses = append(clauses, p.Column+" IS NOT NULL")
			continue
		}
		args = append(args, p.Value)
		clauses = append(clauses, p.Column+" "+sqlOperators[p.Op]+" $"+strconv.Itoa(len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func renderInsert(row Record) (string, []any) {
	cols := Columns()
	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, col := range cols {
		args = append(args, row[col])
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	sql := "INSERT INTO " + TableEvents + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") RETURNING " + strings.Join(cols, ", ")
	return sql, args
}

func renderUpdate(q Query, changes Record) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	args := make([]any, 0, len(changes)+len(q.Predicates))
	sets := make([]string, 0, len(changes)+1)
	// table order keeps the statement text deterministic
	for _, col := range Columns() {
		v, ok := changes[col]
		if !ok {
			continue
		}
		if col == ColumnID || col == ColumnUserID {
			return "", nil, fmt.Errorf("update: column %s is immutable", col)
		}
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	for col := range changes {
		if !isColumn(col) {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
	}
	sets = append(sets, "updated_at = now()")
	where, args := renderWhere(q.Predicates, args)
	sql := "UPDATE " + TableEvents + " SET " + strings.Join(sets, ", ") + where +
		" RETURNING " + strings.Join(Columns(), ", ")
	return sql, args, nil
}

func collect(ctx context.Context, db querier, sql string, args []any) ([]Record, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanRecord reads one row selected with Columns(), in that order.
func scanRecord(row pgx.Row) (Record, error) {
	var (
		id, title, description        string
		start, end                    time.Time
		allDay, isPublic, isRecurring bool
		category                      *string
		color, location, url, status  string
		rule                          *string
		shared                        []string
		userID                        string
	)
	if err := row.Scan(
		&id,
		&title,
		&description,
		&start,
		&end,
		&allDay,
		&category,
		&color,
		&location,
		&url,
		&status,
		&isPublic,
		&isRecurring,
		&rule,
		&shared,
		&userID,
	); err != nil {
		return nil, err
	}
	if shared == nil {
		shared = []string{}
	}
	rec := Record{
		ColumnID:             id,
		ColumnTitle:          title,
		ColumnDescription:    description,
		ColumnStartTime:      start,
		ColumnEndTime:        end,
		ColumnAllDay:         allDay,
		ColumnCategory:       nil,
		ColumnColor:          color,
		ColumnLocation:       location,
		ColumnURL:            url,
		ColumnStatus:         status,
		ColumnIsPublic:       isPublic,
		ColumnIsRecurring:    isRecurring,
		ColumnRecurrenceRule: nil,
		ColumnSharedWith:     shared,
		ColumnUserID:         userID,
	}
	if category != nil {
		rec[ColumnCategory] = *category
	}
	if rule != nil {
		rec[ColumnRecurrenceRule] = *rule
	}
	return rec, nil
}

// Package batchsql stages single-row updates and flushes them as one grouped
// statement on a connection or transaction it does not own.
package batchsql

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type staged struct {
	key   any
	value any
}

// Runner groups "set valueColumn of the row identified by keyColumn" updates
// into a single UPDATE ... CASE statement. It never commits, the staged rows
// become visible to other sessions when the caller commits.
type Runner struct {
	conn        bun.IDB
	table       string
	keyColumn   string
	valueColumn string
	valueType   string
	rows        []staged
	index       map[any]int
}

type Option func(r *Runner)

// WithValueType casts every staged value to typ on Postgres, where untyped
// literals in a CASE otherwise resolve to text (e.g. "TIMESTAMPTZ").
func WithValueType(typ string) Option {
	return func(r *Runner) {
		r.valueType = typ
	}
}

func NewRunner(conn bun.IDB, table, keyColumn, valueColumn string, opts ...Option) *Runner {
	r := &Runner{
		conn:        conn,
		table:       table,
		keyColumn:   keyColumn,
		valueColumn: valueColumn,
		index:       make(map[any]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddUpdate stages value for the row identified by key. Staging the same key
// twice keeps the last value.
func (r *Runner) AddUpdate(key, value any) {
	if i, ok := r.index[key]; ok {
		r.rows[i].value = value
		return
	}
	r.index[key] = len(r.rows)
	r.rows = append(r.rows, staged{key: key, value: value})
}

// Pending is the number of rows staged since the last ExecuteBatch.
func (r *Runner) Pending() int {
	return len(r.rows)
}

// ExecuteBatch sends every staged update in one round trip and starts a new
// batch. It returns the number of rows the statement touched.
func (r *Runner) ExecuteBatch(ctx context.Context) (int64, error) {
	if len(r.rows) == 0 {
		return 0, nil
	}
	rows := r.rows
	r.rows = nil
	r.index = make(map[any]int)

	query, args := r.build(rows)
	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("batch update of %s.%s (%d rows): %w", r.table, r.valueColumn, len(rows), err)
	}

	return res.RowsAffected()
}

func (r *Runner) build(rows []staged) (string, []any) {
	cast := r.valueType != "" && r.conn.Dialect().Name() == dialect.PG

	var b strings.Builder
	args := make([]any, 0, 3+len(rows)*3)

	b.WriteString("UPDATE ? SET ? = CASE ?")
	args = append(args, bun.Ident(r.table), bun.Ident(r.valueColumn), bun.Ident(r.keyColumn))
	for _, row := range rows {
		if cast {
			b.WriteString(" WHEN ? THEN CAST(? AS " + r.valueType + ")")
		} else {
			b.WriteString(" WHEN ? THEN ?")
		}
		args = append(args, row.key, row.value)
	}
	b.WriteString(" ELSE ? END WHERE ? IN (?)")

	keys := make([]any, len(rows))
	for i, row := range rows {
		keys[i] = row.key
	}
	args = append(args, bun.Ident(r.valueColumn), bun.Ident(r.keyColumn), bun.In(keys))

	return b.String(), args
}

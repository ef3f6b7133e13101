package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// envelopeRow scans an (envelope, version) pair.
func envelopeRow(envelope []byte, version int64) simpleRow {
	return simpleRow{scan: func(dest ...any) error {
		if len(dest) != 2 {
			return fmt.Errorf("expected 2 scan targets, got %d", len(dest))
		}
		*dest[0].(*[]byte) = envelope
		*dest[1].(*int64) = version
		return nil
	}}
}

type envelopeRows struct {
	rows []simpleRow
	idx  int
}

func (r *envelopeRows) Close() {}
func (r *envelopeRows) Err() error { return nil }
func (r *envelopeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *envelopeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *envelopeRows) Conn() *pgx.Conn { return nil }
func (r *envelopeRows) RawValues() [][]byte { return nil }

func (r *envelopeRows) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (r *envelopeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *envelopeRows) Scan(dest ...any) error {
	return r.rows[r.idx-1].Scan(dest...)
}

type execCall struct {
	query string
	args  []any
}

// fakeDB answers queries by the marker on their first line.
type fakeDB struct {
	execs    []execCall
	rowCalls []execCall
	execTag  pgconn.CommandTag
	execErr  error
	rowByKey map[string]simpleRow
	rows     *envelopeRows
}

func marker(query string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	return strings.TrimPrefix(first, "--sql ")
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	return f.execTag, f.execErr
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.rowCalls = append(f.rowCalls, execCall{query: query, args: args})
	if row, ok := f.rowByKey[marker(query)]; ok {
		return row
	}
	return simpleRow{}
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if f.rows == nil {
		return &envelopeRows{}, nil
	}
	return f.rows, nil
}

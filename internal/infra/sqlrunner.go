package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is what the repositories need from a database handle.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

const defaultSlowQuery = 500 * time.Millisecond

var (
	markerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\s*$`)

	errEmptyQuery    = errors.New("sql: empty query")
	errMissingMarker = errors.New("sql: first line must be a --sql <uuid> marker")
)

type markedQuery struct {
	marker string
	body   string
	err    error
}

// SQLRunner strips the marker line from every statement before sending it to
// the pool and tags the statement's log lines with it. Statements slower than
// SlowQuery are logged at warn level.
type SQLRunner struct {
	db        SQLExecutor
	logger    zerolog.Logger
	SlowQuery time.Duration

	parsed sync.Map // query text -> markedQuery
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return newSQLRunner(pool, logger)
}

func newSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger.With().Str("component", "sql").Logger(), SlowQuery: defaultSlowQuery}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	q := r.parse(query)
	if q.err != nil {
		return pgconn.CommandTag{}, q.err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, q.body, args...)
	r.finish(q.marker, start, err).Int64("rows", tag.RowsAffected()).Msg("exec")
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	q := r.parse(query)
	if q.err != nil {
		return errRow{err: q.err}
	}
	return &timedRow{row: r.db.QueryRow(ctx, q.body, args...), runner: r, marker: q.marker, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	q := r.parse(query)
	if q.err != nil {
		return nil, q.err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, q.body, args...)
	if err != nil {
		r.finish(q.marker, start, err).Msg("query")
		return nil, err
	}
	return &timedRows{Rows: rows, runner: r, marker: q.marker, start: start}, nil
}

// finish picks the log level for a completed statement. pgx.ErrNoRows is a
// normal outcome for lookups and stays at debug.
func (r *SQLRunner) finish(marker string, start time.Time, err error) *zerolog.Event {
	elapsed := time.Since(start)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		ev = r.logger.Error().Err(err)
	case r.SlowQuery > 0 && elapsed >= r.SlowQuery:
		ev = r.logger.Warn().Bool("slow", true)
	default:
		ev = r.logger.Debug()
	}
	return ev.Str("sql", marker).Dur("elapsed", elapsed)
}

func (r *SQLRunner) parse(query string) markedQuery {
	if cached, ok := r.parsed.Load(query); ok {
		return cached.(markedQuery)
	}
	q := splitMarker(query)
	r.parsed.Store(query, q)
	return q
}

func splitMarker(query string) markedQuery {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return markedQuery{err: errEmptyQuery}
	}
	first, body, _ := strings.Cut(trimmed, "\n")
	m := markerPattern.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return markedQuery{err: errMissingMarker}
	}
	if strings.TrimSpace(body) == "" {
		return markedQuery{err: errEmptyQuery}
	}
	return markedQuery{marker: m[1], body: body}
}

type timedRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (t *timedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.runner.finish(t.marker, t.start, err).Msg("query_row")
	return err
}

type timedRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	once   sync.Once
}

func (t *timedRows) Close() {
	t.Rows.Close()
	t.once.Do(func() {
		t.runner.finish(t.marker, t.start, t.Rows.Err()).Int64("rows", t.Rows.CommandTag().RowsAffected()).Msg("query")
	})
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }

var _ SQLExecutor = (*SQLRunner)(nil)

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/babylog/internal"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id               BIGSERIAL PRIMARY KEY,
	type             TEXT NOT NULL,
	amount           INTEGER,
	subtype          TEXT,
	user_name        TEXT NOT NULL,
	timestamp        TIMESTAMPTZ NOT NULL,
	sleep_start_time TIMESTAMPTZ,
	sleep_end_time   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_events_user_ts ON events (user_name, timestamp);
-- One open sleep session per caregiver, enforced at the schema level: a
-- concurrent start that slips past the locked read fails the insert instead
-- of leaving two open rows.
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_open_sleep ON events (user_name)
	WHERE type = 'sleep' AND sleep_end_time IS NULL;
`

const eventColumns = `id, type, amount, subtype, user_name, timestamp, sleep_start_time, sleep_end_time`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// methods serve plain and transaction-scoped stores.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	q      querier
	logger internal.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger internal.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, internal.WrapStorageError("connect", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		logger.Errorf("failed to ensure schema: %v", err)
		return nil, internal.WrapStorageError("ensure schema", err)
	}
	return &PostgresStore{pool: pool, q: pool, logger: logger}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Create(ctx context.Context, ev *internal.Event) (*internal.Event, error) {
	var sleepStart, sleepEnd *time.Time
	if ev.Sleep != nil {
		start := ev.Sleep.Start
		sleepStart = &start
		sleepEnd = ev.Sleep.End
	}
	row := p.q.QueryRow(ctx,
		`INSERT INTO events (type, amount, subtype, user_name, timestamp, sleep_start_time, sleep_end_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+eventColumns,
		ev.Type, ev.Amount, subtypeArg(ev.Subtype), ev.UserName, ev.Timestamp, sleepStart, sleepEnd)
	created, err := scanEvent(row)
	if err != nil {
		p.logger.Errorf("failed to insert event: %v", err)
		return nil, mapPgError("create event", err)
	}
	return created, nil
}

func (p *PostgresStore) Update(ctx context.Context, id int64, upd EventUpdate) (*internal.Event, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Amount != nil {
		add("amount", *upd.Amount)
	}
	if upd.Subtype != nil {
		add("subtype", string(*upd.Subtype))
	}
	if upd.Timestamp != nil {
		add("timestamp", *upd.Timestamp)
	}
	if upd.SleepStart != nil {
		add("sleep_start_time", *upd.SleepStart)
	}
	if upd.ClearSleepEnd {
		sets = append(sets, "sleep_end_time = NULL")
	} else if upd.SleepEnd != nil {
		add("sleep_end_time", *upd.SleepEnd)
	}
	if len(sets) == 0 {
		return p.GetByID(ctx, id)
	}
	args = append(args, id)
	row := p.q.QueryRow(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+fmt.Sprintf(` WHERE id = $%d RETURNING `, len(args))+eventColumns,
		args...)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, internal.NewNotFoundError(fmt.Sprintf("event %d", id))
		}
		p.logger.Errorf("failed to update event %d: %v", id, err)
		return nil, mapPgError("update event", err)
	}
	return ev, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := p.q.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		p.logger.Errorf("failed to delete event %d: %v", id, err)
		return mapPgError("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return internal.NewNotFoundError(fmt.Sprintf("event %d", id))
	}
	return nil
}

func (p *PostgresStore) GetByID(ctx context.Context, id int64) (*internal.Event, error) {
	row := p.q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, internal.NewNotFoundError(fmt.Sprintf("event %d", id))
		}
		return nil, mapPgError("get event", err)
	}
	return ev, nil
}

func (p *PostgresStore) List(ctx context.Context, f EventFilter) ([]internal.Event, error) {
	where := []string{"TRUE"}
	args := []any{}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("timestamp < $%d", len(args)))
	}
	if f.User != "" {
		args = append(args, f.User)
		where = append(where, fmt.Sprintf("user_name = $%d", len(args)))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	rows, err := p.q.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+strings.Join(where, " AND ")+` ORDER BY timestamp, id`,
		args...)
	if err != nil {
		p.logger.Errorf("failed to query events: %v", err)
		return nil, mapPgError("list events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *PostgresStore) LastOpenSleep(ctx context.Context, user string, forUpdate bool) (*internal.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events
		WHERE user_name = $1 AND type = 'sleep' AND sleep_end_time IS NULL
		ORDER BY sleep_start_time DESC LIMIT 1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	row := p.q.QueryRow(ctx, q, user)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		p.logger.Errorf("failed to query open sleep for %s: %v", user, err)
		return nil, mapPgError("last open sleep", err)
	}
	return ev, nil
}

func (p *PostgresStore) OverlappingSleep(ctx context.Context, start, end time.Time, excludeID int64) ([]internal.Event, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE type = 'sleep' AND id <> $1
		   AND sleep_start_time < $3
		   AND (sleep_end_time IS NULL OR sleep_end_time > $2)
		 ORDER BY sleep_start_time, id`,
		excludeID, start, end)
	if err != nil {
		p.logger.Errorf("failed to query overlapping sleep: %v", err)
		return nil, mapPgError("overlapping sleep", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// InTx begins a transaction and hands fn a transaction-scoped store whose
// locked reads block until a competing transaction commits or rolls back.
func (p *PostgresStore) InTx(ctx context.Context, fn func(EventStore) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return internal.WrapStorageError("begin tx", err)
	}
	txStore := &PostgresStore{pool: nil, q: tx, logger: p.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.logger.Errorf("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError("commit tx", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*internal.Event, error) {
	var ev internal.Event
	var subtype *string
	var sleepStart, sleepEnd *time.Time
	if err := row.Scan(&ev.ID, &ev.Type, &ev.Amount, &subtype, &ev.UserName, &ev.Timestamp, &sleepStart, &sleepEnd); err != nil {
		return nil, err
	}
	if subtype != nil {
		s := internal.DiaperSubtype(*subtype)
		ev.Subtype = &s
	}
	if sleepStart != nil {
		ev.Sleep = &internal.SleepSpan{Start: *sleepStart, End: sleepEnd}
	}
	return &ev, nil
}

func scanEvents(rows pgx.Rows) ([]internal.Event, error) {
	out := []internal.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, mapPgError("scan event", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("scan events", err)
	}
	return out, nil
}

func subtypeArg(s *internal.DiaperSubtype) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// mapPgError classifies unique violations as conflicts, and lock and
// serialization failures as concurrent updates; everything else is a
// storage failure.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return internal.NewConflictError(pgErr.Message)
		case "40001", "40P01", "55P03":
			return &internal.ConcurrentUpdateError{Reason: pgErr.Message}
		}
	}
	return internal.WrapStorageError(op, err)
}

var _ EventStore = (*PostgresStore)(nil)

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Dialect selects placeholder syntax for SQLSink.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// SQLSink appends events to a module_data table. It backs both the sqlite
// and the postgres sinks. Timestamps are stored as unix milliseconds so
// range queries behave the same on both engines.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLSink creates the schema if missing.
func NewSQLSink(ctx context.Context, db *sql.DB, d Dialect) (*SQLSink, error) {
	s := &SQLSink{db: db, dialect: d}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for tests.
func (s *SQLSink) DB() *sql.DB { return s.db }

func (s *SQLSink) ph(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLSink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS module_data(
			id TEXT PRIMARY KEY,
			occurred_ms BIGINT NOT NULL,
			event TEXT NOT NULL,
			module TEXT NOT NULL,
			data TEXT NOT NULL,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_module_data_module ON module_data(module, occurred_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_module_data_time ON module_data(occurred_ms);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	if e.Data == nil {
		data = []byte("{}")
	}
	q := `INSERT INTO module_data(id, occurred_ms, event, module, data, message)
		VALUES(` + strings.Join([]string{s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6)}, ", ") + `);`
	_, err = s.db.ExecContext(ctx, q, e.ID, e.OccurredAt.UnixMilli(), string(e.Type), e.Module, string(data), e.Message)
	return err
}

func (s *SQLSink) Query(ctx context.Context, mod string, since time.Time, limit int) ([]Event, error) {
	q := `SELECT id, occurred_ms, event, module, data, message FROM module_data WHERE occurred_ms > ` + s.ph(1)
	args := []any{since.UnixMilli()}
	if mod != "" {
		q += ` AND module = ` + s.ph(2)
		args = append(args, mod)
	}
	q += ` ORDER BY occurred_ms DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var (
			e    Event
			ms   int64
			typ  string
			data string
		)
		if err := rows.Scan(&e.ID, &ms, &typ, &e.Module, &data, &e.Message); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.OccurredAt = time.UnixMilli(ms).UTC()
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLSink) PurgeOlderThan(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM module_data WHERE occurred_ms < `+s.ph(1), t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLSink) Close() error { return s.db.Close() }

package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/extbox/internal/history"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Options locates the ClickHouse server.
type Options struct {
	Addr     string // host:port of the native protocol
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(o Options) (*Sink, error) {
	if o.Table == "" {
		o.Table = "module_data"
	}
	if !tableName.MatchString(o.Table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", o.Table)
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	s := &Sink{conn: conn, table: o.Table}
	if err := s.ensureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id String,
			type LowCardinality(String),
			occurred_at DateTime64(3),
			module LowCardinality(String),
			data String,
			message String
		) ENGINE = MergeTree()
		ORDER BY (module, occurred_at)`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, type, occurred_at, module, data, message) VALUES (?, ?, ?, ?, ?, ?)`, s.table)
	err = s.conn.Exec(ctx, query, e.ID, string(e.Type), e.OccurredAt, e.Module, string(data), e.Message)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Query(ctx context.Context, mod string, since time.Time, limit int) ([]history.Event, error) {
	q := `SELECT id, type, occurred_at, module, data, message FROM ` + s.table + ` WHERE occurred_at > ?`
	args := []any{since}
	if mod != "" {
		q += ` AND module = ?`
		args = append(args, mod)
	}
	q += ` ORDER BY occurred_at DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var (
			e         history.Event
			typ, data string
		)
		if err := rows.Scan(&e.ID, &typ, &e.OccurredAt, &e.Module, &data, &e.Message); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.OccurredAt = e.OccurredAt.UTC()
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOlderThan issues an asynchronous mutation; ClickHouse does not
// report the number of deleted rows, so the count is always 0.
func (s *Sink) PurgeOlderThan(ctx context.Context, t time.Time) (int64, error) {
	return 0, s.conn.Exec(ctx, `ALTER TABLE `+s.table+` DELETE WHERE occurred_at < ?`, t)
}

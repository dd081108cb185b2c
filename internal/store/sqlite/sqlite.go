package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/extbox/internal/store"
)

// DB is a preferences store on SQLite (modernc.org/sqlite driver, CGO-free).
// The path may be ":memory:".
type DB struct {
	*store.SQLStore
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	if p == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		d.SetMaxOpenConns(1)
	}
	return &DB{SQLStore: store.NewSQLStore(d, store.DialectSQLite)}, nil
}

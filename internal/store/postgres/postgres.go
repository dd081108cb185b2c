package postgres

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/extbox/internal/store"
)

type DB struct {
	*store.SQLStore
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{SQLStore: store.NewSQLStore(d, store.DialectPostgres)}, nil
}

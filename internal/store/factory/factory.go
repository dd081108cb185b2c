package factory

import (
	"errors"
	"strings"

	"github.com/loykin/extbox/internal/store"
	bg "github.com/loykin/extbox/internal/store/badger"
	"github.com/loykin/extbox/internal/store/memory"
	pg "github.com/loykin/extbox/internal/store/postgres"
	rd "github.com/loykin/extbox/internal/store/redis"
	sq "github.com/loykin/extbox/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - memory:   "memory://"
//   - sqlite:   "sqlite://<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - redis:    "redis://" or "rediss://" URL, optional ?key=<hash>
//   - badger:   "badger://<dir>" or "badger://:memory:"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	switch {
	case strings.HasPrefix(ld, "memory://"):
		return memory.New(), nil
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "redis://"), strings.HasPrefix(ld, "rediss://"):
		return rd.New(d)
	case strings.HasPrefix(ld, "badger://"):
		return bg.New(d[len("badger://"):])
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):])
	}
	// default to sqlite path
	return sq.New(d)
}

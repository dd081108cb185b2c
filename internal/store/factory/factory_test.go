package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loykin/extbox/internal/store/memory"
)

func TestFactoryDSNSelection(t *testing.T) {
	// Empty DSN -> error
	if _, err := NewFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	// postgres scheme -> postgres driver object (Close immediately; no connect performed by sql.Open)
	pg, err := NewFromDSN("postgres://user@localhost/db")
	if err != nil || pg == nil {
		t.Fatalf("postgres dsn: err=%v obj=%T", err, pg)
	}
	_ = pg.Close()
	// redis client is lazy as well
	rc, err := NewFromDSN("redis://localhost:6379/0?key=test:prefs")
	if err != nil || rc == nil {
		t.Fatalf("redis dsn: err=%v obj=%T", err, rc)
	}
	_ = rc.Close()
	// sqlite scheme
	s1, err := NewFromDSN("sqlite://:memory:")
	if err != nil || s1 == nil {
		t.Fatalf("sqlite scheme: err=%v obj=%T", err, s1)
	}
	_ = s1.Close()
	// bare path defaults to sqlite
	s2, err := NewFromDSN(":memory:")
	if err != nil || s2 == nil {
		t.Fatalf("bare sqlite: err=%v obj=%T", err, s2)
	}
	_ = s2.Close()
	m, err := NewFromDSN("memory://")
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := m.(*memory.DB); !ok {
		t.Fatalf("memory dsn returned %T", m)
	}
}

func TestFactoryBadgerRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prefs")
	s, err := NewFromDSN("badger://" + dir)
	if err != nil {
		t.Fatalf("badger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	if err := s.Set(ctx, "bat_low_thresh", "20"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "bat_low_thresh")
	if err != nil || !ok || v != "20" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
}

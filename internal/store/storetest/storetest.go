// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"testing"

	"github.com/loykin/extbox/internal/store"
)

// Run exercises the full Store contract against s. s must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "m_battery_enabled", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "m_battery_enabled", "false"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "m_battery_enabled")
	if err != nil || !ok || v != "false" {
		t.Fatalf("get after overwrite: %q ok=%v err=%v", v, ok, err)
	}

	if err := s.SetMany(ctx, map[string]string{"ulk_today": "12", "stp_today": "3400"}); err != nil {
		t.Fatalf("set many: %v", err)
	}
	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all["ulk_today"] != "12" || all["stp_today"] != "3400" {
		t.Fatalf("unexpected list: %v", all)
	}

	if err := s.Delete(ctx, "ulk_today"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "ulk_today"); ok {
		t.Fatalf("key still present after delete")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, err = s.List(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("after clear: %v err=%v", all, err)
	}
}

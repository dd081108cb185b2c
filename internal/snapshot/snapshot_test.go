package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/loykin/extbox/internal/module"
)

func TestSnapshotCopies(t *testing.T) {
	s := New()
	dp := module.DataPoints{}.Add("level", "50%")
	s.Set("battery", time.Unix(10, 0), dp)
	dp[0].Value = "mutated"

	e, ok := s.Get("battery")
	if !ok || e.Points[0].Value != "50%" {
		t.Fatalf("snapshot shares caller slice: %+v", e)
	}
	e.Points[0].Value = "changed"
	again, _ := s.Get("battery")
	if again.Points[0].Value != "50%" {
		t.Fatalf("Get leaked internal slice")
	}

	s.Set("cpu_ram", time.Unix(11, 0), nil)
	if keys := s.Keys(); len(keys) != 2 || keys[0] != "battery" {
		t.Fatalf("keys: %v", keys)
	}
	s.Delete("battery")
	if _, ok := s.Get("battery"); ok || s.Len() != 1 {
		t.Fatalf("delete failed")
	}
	s.Clear()
	if s.Len() != 0 || len(s.All()) != 0 {
		t.Fatalf("clear failed")
	}
}

func TestSnapshotConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("network", time.Now(), module.DataPoints{}.Add("rx", "1 KB/s"))
		}()
		go func() {
			defer wg.Done()
			_ = s.All()
			_ = s.Keys()
		}()
	}
	wg.Wait()
}

package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

var storageInfo = module.Info{
	Key:             "storage",
	Name:            "Storage",
	Emoji:           "💾",
	Description:     "Internal storage usage",
	Priority:        85,
	DefaultEnabled:  false,
	IntervalKey:     "sto_interval",
	DefaultInterval: 5 * time.Minute,
}

type Storage struct {
	module.Base

	mu   sync.Mutex
	disk access.Disk
	ok   bool
}

func NewStorage() *Storage { return &Storage{Base: module.NewBase(storageInfo)} }

func (s *Storage) Start(env module.Env) { s.Begin(env) }
func (s *Storage) Stop()                { s.End() }

func (s *Storage) Tick(ctx context.Context) {
	h := s.Env().Access
	if h == nil {
		return
	}
	d, err := h.Storage(ctx)
	if err != nil {
		s.Log().Debug("disk usage failed", "error", err)
		return
	}
	s.mu.Lock()
	s.disk, s.ok = d, true
	s.mu.Unlock()
}

func (s *Storage) read() (access.Disk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk, s.ok
}

func usedPct(d access.Disk) float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) * 100 / float64(d.Total)
}

func (s *Storage) Compact() string {
	d, _ := s.read()
	return "💾" + format.Bytes(int64(d.Used)) + "/" + format.Bytes(int64(d.Total))
}

func (s *Storage) Detail() string {
	d, _ := s.read()
	return fmt.Sprintf("💾 Internal: %s / %s (%s)\n   Free: %s",
		format.Bytes(int64(d.Used)), format.Bytes(int64(d.Total)), format.Pct(usedPct(d)), format.Bytes(int64(d.Free)))
}

func (s *Storage) DataPoints() module.DataPoints {
	d, _ := s.read()
	return module.DataPoints{}.
		Add("storage.used", format.Bytes(int64(d.Used))).
		Add("storage.free", format.Bytes(int64(d.Free))).
		Add("storage.total", format.Bytes(int64(d.Total))).
		Add("storage.pct", format.Pct(usedPct(d)))
}

// CheckAlerts compares free space in MB; a zero reading never fires.
func (s *Storage) CheckAlerts(ctx context.Context) {
	d, ok := s.read()
	if !ok {
		return
	}
	freeMB := float64(d.Free) / (1024 * 1024)
	env := s.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.StorageLow, freeMB, d.Free > 0, func(float64) (string, string) {
		return "🔴 Low Storage", "Only " + format.Bytes(int64(d.Free)) + " remaining"
	})
}

package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

var sleepInfo = module.Info{
	Key:             "sleep",
	Name:            "Deep Sleep",
	Emoji:           "😴",
	Description:     "CPU sleep vs awake ratio",
	Priority:        30,
	DefaultEnabled:  true,
	IntervalKey:     "slp_interval",
	DefaultInterval: 30 * time.Second,
}

// Sleep measures time suspended since Start: the boot clock keeps running
// while suspended, the monotonic clock does not.
type Sleep struct {
	module.Base

	mu    sync.Mutex
	start access.Clocks
	last  access.Clocks
	ok    bool
}

func NewSleep() *Sleep { return &Sleep{Base: module.NewBase(sleepInfo)} }

func (s *Sleep) Start(env module.Env) {
	s.Begin(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ok = false
	if env.Access == nil {
		return
	}
	c, err := env.Access.Clocks()
	if err != nil {
		s.Log().Debug("clocks unavailable", "error", err)
		return
	}
	s.start, s.last, s.ok = c, c, true
}

func (s *Sleep) Stop() { s.End() }

func (s *Sleep) Tick(context.Context) {
	h := s.Env().Access
	if h == nil {
		return
	}
	c, err := h.Clocks()
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		s.start, s.ok = c, true
	}
	s.last = c
}

// split returns deep sleep, awake time and the deep sleep percentage.
func (s *Sleep) split() (deep, awake time.Duration, pct float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return 0, 0, 0, false
	}
	el := s.last.Boot - s.start.Boot
	awake = s.last.Awake - s.start.Awake
	deep = max(0, el-awake)
	if el > 0 {
		pct = float64(deep) * 100 / float64(el)
	}
	return deep, awake, pct, true
}

func (s *Sleep) Compact() string {
	_, _, pct, ok := s.split()
	if !ok {
		return "Sleep:" + format.Unavailable
	}
	return fmt.Sprintf("Sleep:%d%%", int(pct))
}

func (s *Sleep) Detail() string {
	deep, awake, pct, ok := s.split()
	if !ok {
		return "😴 Sleep clocks unavailable"
	}
	return fmt.Sprintf("😴 Deep Sleep: %s (%s)\n   Awake: %s (%s)",
		format.Duration(deep), format.Pct(pct), format.Duration(awake), format.Pct(100-pct))
}

func (s *Sleep) DataPoints() module.DataPoints {
	deep, awake, pct, ok := s.split()
	if !ok {
		return module.DataPoints{}.Add("sleep.status", "Unavailable")
	}
	return module.DataPoints{}.
		Add("sleep.deep_time", format.Duration(deep)).
		Add("sleep.deep_pct", format.Pct(pct)).
		Add("sleep.awake_time", format.Duration(awake)).
		Add("sleep.awake_pct", format.Pct(100-pct))
}

package modules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

const (
	keyScreenOn        = "scr_on_acc"
	keyScreenOff       = "scr_off_acc"
	keyScreenYesterday = "scr_yesterday_on"
)

var screenInfo = module.Info{
	Key:             "screen",
	Name:            "Screen Time",
	Emoji:           "📱",
	Description:     "Screen on/off time, drain rates",
	Priority:        20,
	DefaultEnabled:  true,
	IntervalKey:     "scr_interval",
	DefaultInterval: 10 * time.Second,
}

// Screen accumulates on and off time from OnScreen events. Closed periods
// are persisted; the open period is added when reading.
type Screen struct {
	module.Base

	mu          sync.Mutex
	on          bool
	onAcc       time.Duration
	offAcc      time.Duration
	periodStart time.Time
	startLevel  int
	onDrain     float64
	offDrain    float64
}

func NewScreen() *Screen { return &Screen{Base: module.NewBase(screenInfo)} }

func (s *Screen) Start(env module.Env) {
	s.Begin(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = true
	s.resetLocked()
}

func (s *Screen) resetLocked() {
	p := s.Env().Prefs
	s.onAcc = time.Duration(p.GetLong(keyScreenOn, 0)) * time.Millisecond
	s.offAcc = time.Duration(p.GetLong(keyScreenOff, 0)) * time.Millisecond
	s.onDrain, s.offDrain = 0, 0
	s.periodStart = s.Now()
	s.startLevel = s.level()
}

func (s *Screen) Stop() { s.End() }

// Tick has nothing to sample; state changes arrive through OnScreen.
func (s *Screen) Tick(context.Context) {}

// OnScreen closes the current period and starts one in the new state.
// Repeated events for the current state are ignored.
func (s *Screen) OnScreen(on bool) {
	if !s.Alive() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if on == s.on {
		return
	}
	now := s.Now()
	dt := now.Sub(s.periodStart)
	if dt < 0 {
		dt = 0
	}
	cur := s.level()
	drain := float64(max(0, s.startLevel-cur))
	if s.on {
		s.onAcc += dt
		s.onDrain += drain
	} else {
		s.offAcc += dt
		s.offDrain += drain
	}
	s.on = on
	s.periodStart = now
	s.startLevel = cur
	s.Env().Prefs.SetMany(map[string]string{
		keyScreenOn:  fmt.Sprint(s.onAcc.Milliseconds()),
		keyScreenOff: fmt.Sprint(s.offAcc.Milliseconds()),
	})
}

// OnDayRollover picks up the zeroed counters; the open period restarts now.
func (s *Screen) OnDayRollover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Screen) OnMonthRollover() {}

func (s *Screen) level() int {
	h := s.Env().Access
	if h == nil {
		return 0
	}
	b, err := h.Battery(context.Background())
	if err != nil {
		return 0
	}
	return b.Level
}

func (s *Screen) totals() (on, off time.Duration, screenOn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := s.Now().Sub(s.periodStart)
	if open < 0 {
		open = 0
	}
	on, off = s.onAcc, s.offAcc
	if s.on {
		on += open
	} else {
		off += open
	}
	return on, off, s.on
}

func (s *Screen) Compact() string {
	on, _, _ := s.totals()
	return "On: " + format.Duration(on)
}

func (s *Screen) Detail() string {
	on, off, screenOn := s.totals()
	p := s.Env().Prefs
	var sb strings.Builder
	sb.WriteString("📱 Screen On: " + format.Duration(on))
	if p.GetBool("scr_show_drain", true) {
		s.mu.Lock()
		onDrain, offDrain, start := s.onDrain, s.offDrain, s.startLevel
		s.mu.Unlock()
		if screenOn {
			onDrain += float64(max(0, start-s.level()))
		}
		fmt.Fprintf(&sb, " • %.1f%%", onDrain)
		fmt.Fprintf(&sb, "\n   Screen Off: %s • %.1f%%", format.Duration(off), offDrain)
		if on > time.Minute {
			fmt.Fprintf(&sb, "\n   Active: %.1f%%/h", onDrain/on.Hours())
		}
	} else {
		sb.WriteString("\n   Screen Off: " + format.Duration(off))
	}
	if p.GetBool("scr_show_yesterday", true) {
		y := time.Duration(p.GetLong(keyScreenYesterday, 0)) * time.Millisecond
		if y > 0 {
			pct := int((on - y) * 100 / y)
			cmp := fmt.Sprintf("↑%d%%", pct)
			if pct <= 0 {
				cmp = fmt.Sprintf("↓%d%% 🎉", -pct)
			}
			fmt.Fprintf(&sb, "\n   Yesterday: %s (%s)", format.Duration(y), cmp)
		}
	}
	return sb.String()
}

func (s *Screen) DataPoints() module.DataPoints {
	on, off, _ := s.totals()
	return module.DataPoints{}.
		Add("screen.on_time", format.Duration(on)).
		Add("screen.off_time", format.Duration(off))
}

// CheckAlerts compares on-time in minutes against scr_time_limit.
func (s *Screen) CheckAlerts(ctx context.Context) {
	on, _, _ := s.totals()
	env := s.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.ScreenLimit, on.Minutes(), true, func(float64) (string, string) {
		return "🔴 Screen Time Limit", fmt.Sprintf("Screen on for %s. Take a break!", format.Duration(on))
	})
}

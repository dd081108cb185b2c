package modules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/module"
)

const (
	keyUnlockToday     = "ulk_today"
	keyUnlockYesterday = "ulk_yesterday"
	keyUnlockDebounce  = "ulk_debounce"
	keyUnlockLimit     = "ulk_daily_limit"

	defaultUnlockDebounce = 5000 // ms
)

var unlockInfo = module.Info{
	Key:             "unlock",
	Name:            "Unlock Counter",
	Emoji:           "🔓",
	Description:     "Daily unlocks, detox tracking",
	Priority:        60,
	DefaultEnabled:  true,
	IntervalKey:     "ulk_interval",
	DefaultInterval: 10 * time.Second,
}

// Unlock counts OnUnlock events, ignoring those within ulk_debounce of
// the last counted one.
type Unlock struct {
	module.Base

	mu    sync.Mutex
	count int
	last  time.Time
}

func NewUnlock() *Unlock { return &Unlock{Base: module.NewBase(unlockInfo)} }

func (u *Unlock) Start(env module.Env) {
	u.Begin(env)
	u.mu.Lock()
	u.count = env.Prefs.GetInt(keyUnlockToday, 0)
	u.last = time.Time{}
	u.mu.Unlock()
}

func (u *Unlock) Stop() { u.End() }

// Tick re-reads the persisted count so edits and resets show up.
func (u *Unlock) Tick(context.Context) {
	u.mu.Lock()
	u.count = u.Env().Prefs.GetInt(keyUnlockToday, 0)
	u.mu.Unlock()
}

// OnUnlock records an unlock and reports whether it was counted.
func (u *Unlock) OnUnlock() bool {
	if !u.Alive() {
		return false
	}
	p := u.Env().Prefs
	debounce := time.Duration(p.GetLong(keyUnlockDebounce, defaultUnlockDebounce)) * time.Millisecond
	now := u.Now()

	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.last.IsZero() && now.Sub(u.last) < debounce {
		return false
	}
	u.count = p.GetInt(keyUnlockToday, 0) + 1
	u.last = now
	p.SetInt(keyUnlockToday, u.count)
	return true
}

func (u *Unlock) OnDayRollover() {
	u.mu.Lock()
	u.count = u.Env().Prefs.GetInt(keyUnlockToday, 0)
	u.mu.Unlock()
}

func (u *Unlock) OnMonthRollover() {}

func (u *Unlock) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

func (u *Unlock) Compact() string { return "🔓" + strconv.Itoa(u.Count()) }

func vsYesterday(today, yesterday int64, fmtN func(int64) string) string {
	diff := today - yesterday
	if diff <= 0 {
		return "↓" + fmtN(-diff) + " 🎉"
	}
	return "↑" + fmtN(diff)
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }

func (u *Unlock) Detail() string {
	p := u.Env().Prefs
	count := u.Count()
	yesterday := p.GetInt(keyUnlockYesterday, 0)
	limit := p.GetInt(keyUnlockLimit, 0)

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔓 Unlocked: %d times today", count)
	now := u.Now()
	if h := float64(now.Hour()) + float64(now.Minute())/60; h > 0.1 {
		fmt.Fprintf(&sb, " (%.1f/h)", float64(count)/h)
	}
	if yesterday > 0 {
		fmt.Fprintf(&sb, "\n   Yesterday: %d (%s)", yesterday, vsYesterday(int64(count), int64(yesterday), itoa64))
	}
	if limit > 0 {
		fmt.Fprintf(&sb, "\n   Limit: %d (%d remaining)", limit, max(0, limit-count))
	}
	return sb.String()
}

func (u *Unlock) DataPoints() module.DataPoints {
	p := u.Env().Prefs
	count := u.Count()
	yesterday := p.GetInt(keyUnlockYesterday, 0)
	d := module.DataPoints{}.
		Add("unlock.today", strconv.Itoa(count)).
		Add("unlock.yesterday", strconv.Itoa(yesterday))
	if yesterday > 0 {
		d = d.Add("unlock.vs_yesterday", vsYesterday(int64(count), int64(yesterday), itoa64))
	}
	limit := p.GetInt(keyUnlockLimit, 0)
	if limit > 0 {
		d = d.Add("unlock.limit", strconv.Itoa(limit)).
			Add("unlock.remaining", strconv.Itoa(max(0, limit-count)))
	} else {
		d = d.Add("unlock.limit", "Off")
	}
	return d
}

func (u *Unlock) CheckAlerts(ctx context.Context) {
	count := u.Count()
	env := u.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.UnlockLimit, float64(count), true, func(limit float64) (string, string) {
		return "🔴 Unlock Limit Reached", fmt.Sprintf("You've unlocked %d times. Limit: %d. Take a break!", count, int(limit))
	})
}

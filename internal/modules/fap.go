package modules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/module"
)

const (
	keyFapToday     = "fap_today"
	keyFapYesterday = "fap_yesterday"
	keyFapMonthly   = "fap_monthly"
	keyFapAllTime   = "fap_all_time"
	keyFapStreak    = "fap_streak"
)

var fapInfo = module.Info{
	Key:             "fap",
	Name:            "Fap Counter",
	Emoji:           "🍆",
	Description:     "Self-monitoring counter & streak tracker",
	Priority:        100,
	DefaultEnabled:  false,
	IntervalKey:     "fap_interval",
	DefaultInterval: time.Minute,
}

// Fap is a manual counter. All state lives in preferences; the streak is
// advanced by the day rollover when a day closes with no events.
type Fap struct {
	module.Base
}

func NewFap() *Fap { return &Fap{Base: module.NewBase(fapInfo)} }

func (f *Fap) Start(env module.Env) { f.Begin(env) }
func (f *Fap) Stop()                { f.End() }
func (f *Fap) Tick(context.Context) {}

// Increment bumps today, monthly and all-time counts and breaks the streak.
func (f *Fap) Increment() int {
	if !f.Alive() {
		return 0
	}
	p := f.Env().Prefs
	today := p.GetInt(keyFapToday, 0) + 1
	p.SetMany(map[string]string{
		keyFapToday:   strconv.Itoa(today),
		keyFapMonthly: strconv.Itoa(p.GetInt(keyFapMonthly, 0) + 1),
		keyFapAllTime: strconv.Itoa(p.GetInt(keyFapAllTime, 0) + 1),
		keyFapStreak:  "0",
	})
	return today
}

func (f *Fap) counts() (today, streak int) {
	p := f.Env().Prefs
	return p.GetInt(keyFapToday, 0), p.GetInt(keyFapStreak, 0)
}

func (f *Fap) Compact() string {
	today, streak := f.counts()
	if streak > 0 {
		return fmt.Sprintf("🍆%d 🔥%dd", today, streak)
	}
	return fmt.Sprintf("🍆%d today", today)
}

func (f *Fap) Detail() string {
	today, streak := f.counts()
	s := fmt.Sprintf("🍆 Today: %d", today)
	if streak > 0 {
		s += fmt.Sprintf(" • 🔥 Streak: %dd clean", streak)
	}
	return s + fmt.Sprintf("\n   Monthly: %d", f.Env().Prefs.GetInt(keyFapMonthly, 0))
}

func (f *Fap) DataPoints() module.DataPoints {
	p := f.Env().Prefs
	today, streak := f.counts()
	st := "0"
	if streak > 0 {
		st = fmt.Sprintf("%d days 🔥", streak)
	}
	return module.DataPoints{}.
		Add("fap.today", strconv.Itoa(today)).
		Add("fap.yesterday", strconv.Itoa(p.GetInt(keyFapYesterday, 0))).
		Add("fap.streak", st).
		Add("fap.monthly", strconv.Itoa(p.GetInt(keyFapMonthly, 0))).
		Add("fap.all_time", strconv.Itoa(p.GetInt(keyFapAllTime, 0)))
}

func (f *Fap) CheckAlerts(ctx context.Context) {
	today, _ := f.counts()
	env := f.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.FapLimit, float64(today), true, func(limit float64) (string, string) {
		return "🍆 Daily Limit Reached", fmt.Sprintf("You've reached your daily limit of %d. Take a break!", int(limit))
	})
}

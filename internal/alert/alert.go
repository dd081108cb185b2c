// Package alert implements threshold alerts that fire once on entering a
// bad region and re-arm only after the reading recovers past a margin.
package alert

import (
	"context"
	"time"

	"github.com/loykin/extbox/internal/metrics"
)

// Alert is one user-facing notification.
type Alert struct {
	ID     string    `json:"id"`
	Module string    `json:"module,omitempty"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	At     time.Time `json:"at"`
}

// Notifier delivers alerts. Raise must not block the caller for long and
// must be safe for concurrent use.
type Notifier interface {
	Raise(ctx context.Context, a Alert)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert)

func (f NotifierFunc) Raise(ctx context.Context, a Alert) { f(ctx, a) }

// Nop discards alerts.
var Nop Notifier = NotifierFunc(func(context.Context, Alert) {})

// Prefs is the subset of the preference store a rule needs.
type Prefs interface {
	GetBool(key string, def bool) bool
	GetFloat(key string, def float64) float64
	SetBool(key string, v bool)
}

type Direction int

const (
	// Above fires when the value reaches the threshold (temperature, RAM).
	Above Direction = iota
	// Below fires when the value drops to the threshold (battery, storage).
	Below
)

// Rule describes one hysteresis alert. Threshold, enable flag and fired
// flag are read from preferences on every evaluation.
type Rule struct {
	ID     string
	Module string

	FlagKey string

	// EnabledKey may be empty for always-on rules.
	EnabledKey     string
	EnabledDefault bool

	ThresholdKey     string
	ThresholdDefault float64

	Direction   Direction
	ResetMargin float64

	// Latching rules never clear on recovery; a rollover resets them.
	Latching bool
	// DisabledAtZero treats a threshold <= 0 as "no limit".
	DisabledAtZero bool
}

// Outcome reports what an evaluation did.
type Outcome struct {
	Fired     bool
	Cleared   bool
	Threshold float64
}

func (r Rule) Enabled(p Prefs) bool {
	if r.EnabledKey == "" {
		return true
	}
	return p.GetBool(r.EnabledKey, r.EnabledDefault)
}

func (r Rule) Threshold(p Prefs) float64 {
	if r.ThresholdKey == "" {
		return r.ThresholdDefault
	}
	return p.GetFloat(r.ThresholdKey, r.ThresholdDefault)
}

func (r Rule) bad(v, t float64) bool {
	if r.Direction == Below {
		return v <= t
	}
	return v >= t
}

func (r Rule) recovered(v, t float64) bool {
	if r.Direction == Below {
		return v > t+r.ResetMargin
	}
	return v < t-r.ResetMargin
}

// Evaluate applies the hysteresis state machine to a reading. gate is an
// extra precondition for firing (e.g. "not charging"); it does not affect
// clearing.
func (r Rule) Evaluate(p Prefs, v float64, gate bool) Outcome {
	t := r.Threshold(p)
	out := Outcome{Threshold: t}
	fired := p.GetBool(r.FlagKey, false)
	if r.DisabledAtZero && t <= 0 {
		return out
	}
	if !fired {
		if r.Enabled(p) && gate && r.bad(v, t) {
			p.SetBool(r.FlagKey, true)
			out.Fired = true
			metrics.IncAlertFired(r.ID)
		}
		return out
	}
	if !r.Latching && r.recovered(v, t) {
		p.SetBool(r.FlagKey, false)
		out.Cleared = true
		metrics.IncAlertCleared(r.ID)
	}
	return out
}

// Check evaluates r and raises the alert built by msg when it fires.
func Check(ctx context.Context, p Prefs, n Notifier, r Rule, v float64, gate bool, msg func(threshold float64) (title, body string)) Outcome {
	out := r.Evaluate(p, v, gate)
	if out.Fired && n != nil {
		title, body := msg(out.Threshold)
		n.Raise(ctx, Alert{ID: r.ID, Module: r.Module, Title: title, Body: body, At: time.Now()})
	}
	return out
}

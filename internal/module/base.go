package module

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/clock"
)

// minInterval guards against a zero or negative interval preference.
const minInterval = 500 * time.Millisecond

// Base carries identity, liveness and the Env. Modules embed it and call
// Begin/End from their own Start/Stop.
type Base struct {
	info  Info
	alive atomic.Bool
	env   Env
}

func NewBase(info Info) Base { return Base{info: info} }

func (b *Base) Info() Info { return b.info }

func (b *Base) Key() string          { return b.info.Key }
func (b *Base) Name() string         { return b.info.Name }
func (b *Base) Emoji() string        { return b.info.Emoji }
func (b *Base) Priority() int        { return b.info.Priority }
func (b *Base) DefaultEnabled() bool { return b.info.DefaultEnabled }
func (b *Base) Alive() bool          { return b.alive.Load() }

// Begin stores env, filling missing collaborators, and marks the module alive.
func (b *Base) Begin(env Env) {
	if env.Clock == nil {
		env.Clock = clock.Real{}
	}
	if env.Alerts == nil {
		env.Alerts = alert.Nop
	}
	if env.Log == nil {
		env.Log = slog.Default()
	}
	env.Log = env.Log.With("module", b.info.Key)
	b.env = env
	b.alive.Store(true)
}

// End marks the module stopped. It reports whether this call did the transition.
func (b *Base) End() bool { return b.alive.CompareAndSwap(true, false) }

func (b *Base) Env() Env { return b.env }

func (b *Base) Log() *slog.Logger {
	if b.env.Log == nil {
		return slog.Default()
	}
	return b.env.Log
}

func (b *Base) Now() time.Time {
	if b.env.Clock == nil {
		return time.Now()
	}
	return b.env.Clock.Now()
}

func (b *Base) TickInterval() time.Duration {
	if b.env.Prefs == nil || b.info.IntervalKey == "" {
		return b.info.DefaultInterval
	}
	ms := b.env.Prefs.GetLong(b.info.IntervalKey, b.info.DefaultInterval.Milliseconds())
	d := time.Duration(ms) * time.Millisecond
	if d < minInterval {
		return b.info.DefaultInterval
	}
	return d
}

// CheckAlerts is a no-op for modules without alerts.
func (b *Base) CheckAlerts(context.Context) {}

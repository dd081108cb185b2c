// Package module defines the contract every monitoring module implements.
package module

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/clock"
	"github.com/loykin/extbox/internal/store"
	"github.com/loykin/extbox/internal/worker"
)

// Module is a pluggable telemetry source driven by the scheduler.
//
// Start never fails: a module that cannot reach its data source reports a
// degraded reading through Compact, Detail and DataPoints. Stop must be
// idempotent. Tick and CheckAlerts are only called while Alive.
type Module interface {
	Key() string
	Name() string
	Emoji() string
	Priority() int
	DefaultEnabled() bool

	Start(env Env)
	Stop()
	Alive() bool

	// TickInterval is re-read from preferences on every call.
	TickInterval() time.Duration
	Tick(ctx context.Context)

	Compact() string
	Detail() string
	DataPoints() DataPoints
	CheckAlerts(ctx context.Context)
}

// RolloverAware modules are told after persisted counters were reset so
// they can resynchronise in-memory caches.
type RolloverAware interface {
	OnDayRollover()
	OnMonthRollover()
}

// Env is everything a module may use while running.
type Env struct {
	Prefs  *store.Prefs
	Access access.Handle
	Alerts alert.Notifier
	Pool   *worker.Pool
	Clock  clock.Clock
	Log    *slog.Logger
}

// Info is the static identity of a module.
type Info struct {
	Key             string        `json:"key"`
	Name            string        `json:"name"`
	Emoji           string        `json:"emoji"`
	Description     string        `json:"description"`
	Priority        int           `json:"priority"`
	DefaultEnabled  bool          `json:"default_enabled"`
	IntervalKey     string        `json:"interval_key"`
	DefaultInterval time.Duration `json:"default_interval"`
}

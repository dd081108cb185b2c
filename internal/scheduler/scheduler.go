// Package scheduler drives every enabled module from one cooperative loop.
//
// Each sweep runs, in order: rollover check, sync pass (start/stop modules
// to match their enable flags), due check (tick modules whose interval has
// elapsed), re-render, and next-wake computation. Module calls never run
// concurrently with each other.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/extbox/internal/clock"
	"github.com/loykin/extbox/internal/metrics"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/internal/registry"
	"github.com/loykin/extbox/internal/rollover"
	"github.com/loykin/extbox/internal/snapshot"
)

var ErrShutdown = errors.New("scheduler shut down")

// Config bounds the delay between sweeps.
type Config struct {
	MinDelay  time.Duration `toml:"min_delay" mapstructure:"min_delay"`
	MaxDelay  time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	IdleDelay time.Duration `toml:"idle_delay" mapstructure:"idle_delay"`
}

func DefaultConfig() Config {
	return Config{MinDelay: time.Second, MaxDelay: time.Minute, IdleDelay: 5 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinDelay <= 0 {
		c.MinDelay = d.MinDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = d.IdleDelay
	}
	return c
}

// Rollover is the calendar boundary check run once per sweep.
type Rollover interface {
	Check(now time.Time) rollover.Result
}

// Recorder receives tick output and rollovers. Implementations must not
// block the sweep.
type Recorder interface {
	RecordSnapshot(ctx context.Context, key string, at time.Time, dp module.DataPoints)
	RecordRollover(ctx context.Context, at time.Time, res rollover.Result)
}

// Options wires a Scheduler. Registry and Env.Prefs are required.
type Options struct {
	Registry *registry.Registry
	Env      module.Env
	Rollover Rollover
	Display  present.Display
	Recorder Recorder
	Snapshot *snapshot.Map
	Config   Config
}

type instance struct {
	mod      module.Module
	lastTick time.Time
	ticked   bool
}

// Scheduler owns module instances and the snapshot map.
type Scheduler struct {
	reg   *registry.Registry
	env   module.Env
	roll  Rollover
	disp  present.Display
	rec   Recorder
	snap  *snapshot.Map
	cfg   Config
	clock clock.Clock
	log   *slog.Logger

	// mu serializes sweeps and guards everything below.
	mu        sync.Mutex
	inst      map[string]*instance
	stopped   bool // modules torn down
	swept     bool
	lastSweep time.Time
	nextDelay time.Duration

	// life guards running. It is never held across a sweep, so Shutdown
	// can honour its context while a module call is in progress.
	life    sync.Mutex
	running chan struct{} // closed when Run returns; nil if Run never started
	closed  atomic.Bool   // no further sweeps; set once by Shutdown
	kick    chan struct{}
	stop    chan struct{}
}

func New(opts Options) (*Scheduler, error) {
	if opts.Registry == nil {
		return nil, errors.New("scheduler: registry is required")
	}
	if opts.Env.Prefs == nil {
		return nil, errors.New("scheduler: prefs are required")
	}
	env := opts.Env
	if env.Clock == nil {
		env.Clock = clock.Real{}
	}
	if env.Log == nil {
		env.Log = slog.Default()
	}
	snap := opts.Snapshot
	if snap == nil {
		snap = snapshot.New()
	}
	cfg := opts.Config.withDefaults()
	return &Scheduler{
		reg:       opts.Registry,
		env:       env,
		roll:      opts.Rollover,
		disp:      opts.Display,
		rec:       opts.Recorder,
		snap:      snap,
		cfg:       cfg,
		clock:     env.Clock,
		log:       env.Log.With("component", "scheduler"),
		inst:      map[string]*instance{},
		nextDelay: cfg.IdleDelay,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}, nil
}

func (s *Scheduler) Snapshot() *snapshot.Map { return s.snap }

// Run sweeps until ctx is cancelled or Shutdown is called. It may be
// called at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	s.life.Lock()
	if s.closed.Load() {
		s.life.Unlock()
		return ErrShutdown
	}
	if s.running != nil {
		s.life.Unlock()
		return errors.New("scheduler: already running")
	}
	done := make(chan struct{})
	s.running = done
	s.life.Unlock()
	defer func() {
		// A Shutdown that gave up waiting still gets its modules stopped.
		if s.closed.Load() {
			s.mu.Lock()
			s.teardownLocked()
			s.mu.Unlock()
		}
		close(done)
	}()

	s.log.Info("scheduler started", "modules", s.reg.Len())
	for {
		delay := s.Sweep(ctx)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-s.stop:
			t.Stop()
			return nil
		case <-s.kick:
			t.Stop()
		case <-t.C:
		}
	}
}

// Kick wakes the loop for an early sweep, e.g. after a module was enabled.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Shutdown stops the loop, then every alive module, and clears the
// snapshot. No module call happens after Shutdown returns or while it
// waits for the loop. If ctx ends first the loop still exits and stops the
// modules on its own; calling Shutdown again waits for that.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.life.Lock()
	if !s.closed.Load() {
		s.closed.Store(true)
		close(s.stop)
	}
	done := s.running
	s.life.Unlock()

	if done != nil {
		select {
		case <-done:
		default:
			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	return nil
}

func (s *Scheduler) teardownLocked() {
	if s.stopped {
		return
	}
	for _, e := range s.reg.Entries() {
		if in, ok := s.inst[e.Key]; ok {
			s.stopInstance(e.Key, in)
		}
	}
	s.snap.Clear()
	s.stopped = true
	s.log.Info("scheduler stopped")
}

// Sweep runs one full pass and returns the delay until the next one.
func (s *Scheduler) Sweep(ctx context.Context) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return s.cfg.IdleDelay
	}
	now := s.clock.Now()
	metrics.IncSweep()

	dirty := s.checkRollover(ctx, now)
	if s.sync() {
		dirty = true
	}
	if s.tickDue(ctx, now) {
		dirty = true
	}
	if dirty || !s.swept {
		s.render(ctx)
	}
	s.swept = true
	s.lastSweep = now
	s.nextDelay = s.delayLocked(now)
	metrics.SetNextWake(s.nextDelay.Seconds())
	return s.nextDelay
}

func (s *Scheduler) checkRollover(ctx context.Context, now time.Time) bool {
	if s.roll == nil {
		return false
	}
	var res rollover.Result
	if !s.safe("rollover", "check", func() { res = s.roll.Check(now) }) {
		return false
	}
	if !res.Any() {
		return false
	}
	for _, e := range s.reg.Entries() {
		in, ok := s.inst[e.Key]
		if !ok || !in.mod.Alive() {
			continue
		}
		ra, ok := in.mod.(module.RolloverAware)
		if !ok {
			continue
		}
		if res.Day {
			s.safe(e.Key, "rollover", ra.OnDayRollover)
		}
		if res.Month {
			s.safe(e.Key, "rollover", ra.OnMonthRollover)
		}
	}
	if s.rec != nil {
		s.rec.RecordRollover(ctx, now, res)
	}
	return true
}

// sync starts and stops instances to match the enable flags. It reports
// whether the alive set changed.
func (s *Scheduler) sync() bool {
	changed := false
	for _, e := range s.reg.Entries() {
		want := s.env.Prefs.ModuleEnabled(e.Key, e.DefaultEnabled)
		in, exists := s.inst[e.Key]
		alive := exists && in.mod.Alive()
		switch {
		case want && !alive:
			if exists {
				// died on its own; discard and start fresh
				s.stopInstance(e.Key, in)
			}
			if s.startInstance(e) {
				changed = true
			}
		case !want && exists:
			s.stopInstance(e.Key, in)
			changed = true
		}
	}
	return changed
}

func (s *Scheduler) startInstance(e registry.Entry) bool {
	m := e.New()
	if m == nil {
		s.log.Error("module factory returned nil", "module", e.Key)
		return false
	}
	if !s.safe(e.Key, "start", func() { m.Start(s.env) }) {
		s.safe(e.Key, "stop", m.Stop)
		return false
	}
	s.inst[e.Key] = &instance{mod: m}
	metrics.SetAlive(e.Key, true)
	s.log.Info("module started", "module", e.Key)
	return true
}

func (s *Scheduler) stopInstance(key string, in *instance) {
	s.safe(key, "stop", in.mod.Stop)
	delete(s.inst, key)
	s.snap.Delete(key)
	metrics.SetAlive(key, false)
	s.log.Info("module stopped", "module", key)
}

func (s *Scheduler) tickDue(ctx context.Context, now time.Time) bool {
	ticked := false
	for _, e := range s.reg.Entries() {
		in, ok := s.inst[e.Key]
		if !ok || !in.mod.Alive() {
			continue
		}
		if in.ticked {
			var iv time.Duration
			if !s.safe(e.Key, "interval", func() { iv = in.mod.TickInterval() }) {
				continue
			}
			if now.Sub(in.lastTick) < iv {
				continue
			}
		}
		start := time.Now()
		s.safe(e.Key, "tick", func() { in.mod.Tick(ctx) })
		s.safe(e.Key, "alerts", func() { in.mod.CheckAlerts(ctx) })
		metrics.ObserveTick(e.Key, time.Since(start).Seconds())
		in.lastTick = now
		in.ticked = true
		ticked = true

		var dp module.DataPoints
		if s.safe(e.Key, "datapoints", func() { dp = in.mod.DataPoints() }) {
			s.snap.Set(e.Key, now, dp)
			if s.rec != nil {
				s.rec.RecordSnapshot(ctx, e.Key, now, dp)
			}
		}
	}
	return ticked
}

func (s *Scheduler) render(ctx context.Context) {
	if s.disp == nil {
		return
	}
	var p present.Presentation
	if s.safe("present", "render", func() { p = present.Build(s.env.Prefs, s.aliveLocked()) }) {
		s.disp.Render(ctx, p)
	}
}

// delayLocked picks the time until the earliest module is due.
func (s *Scheduler) delayLocked(now time.Time) time.Duration {
	var (
		best  time.Duration
		found bool
	)
	for key, in := range s.inst {
		if !in.mod.Alive() {
			continue
		}
		var iv time.Duration
		if !s.safe(key, "interval", func() { iv = in.mod.TickInterval() }) {
			continue
		}
		d := iv
		if in.ticked {
			d = in.lastTick.Add(iv).Sub(now)
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	if !found {
		return s.cfg.IdleDelay
	}
	return clamp(best, s.cfg.MinDelay, s.cfg.MaxDelay)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// safe runs fn and converts a panic into a logged, counted failure.
func (s *Scheduler) safe(key, phase string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			metrics.IncPanic(key, phase)
			s.log.Error("module call panicked", "module", key, "phase", phase, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
	return true
}

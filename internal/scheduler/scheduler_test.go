package scheduler

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/clock"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/internal/registry"
	"github.com/loykin/extbox/internal/rollover"
	"github.com/loykin/extbox/internal/store"
	"github.com/loykin/extbox/internal/store/memory"
)

type fakeMod struct {
	module.Base
	ticks     atomic.Int32
	stops     atomic.Int32
	panicTick bool
	// panicInterval makes TickInterval panic once set.
	panicInterval atomic.Bool
	days          atomic.Int32
}

func (f *fakeMod) TickInterval() time.Duration {
	if f.panicInterval.Load() {
		panic("interval lookup failed")
	}
	return f.Base.TickInterval()
}

func (f *fakeMod) Start(env module.Env) { f.Begin(env) }
func (f *fakeMod) Stop() {
	if f.End() {
		f.stops.Add(1)
	}
}
func (f *fakeMod) Tick(context.Context) {
	f.ticks.Add(1)
	if f.panicTick {
		panic("sensor exploded")
	}
}
func (f *fakeMod) Compact() string { return f.Key() + strconv.Itoa(int(f.ticks.Load())) }
func (f *fakeMod) Detail() string  { return f.Key() }
func (f *fakeMod) DataPoints() module.DataPoints {
	return module.DataPoints{}.Add("ticks", strconv.Itoa(int(f.ticks.Load())))
}
func (f *fakeMod) OnDayRollover()   { f.days.Add(1) }
func (f *fakeMod) OnMonthRollover() {}

// harness tracks every instance a factory produced.
type harness struct {
	mu    sync.Mutex
	made  map[string][]*fakeMod
	clock *clock.Fake
	prefs *store.Prefs
	disp  *present.Latest
	sched *Scheduler
}

func (h *harness) entry(key string, prio int, interval time.Duration, enabled bool, panicTick bool) registry.Entry {
	info := module.Info{Key: key, Name: key, Priority: prio, DefaultEnabled: enabled,
		IntervalKey: key + "_interval", DefaultInterval: interval}
	return registry.Entry{Info: info, New: func() module.Module {
		m := &fakeMod{Base: module.NewBase(info), panicTick: panicTick}
		h.mu.Lock()
		h.made[key] = append(h.made[key], m)
		h.mu.Unlock()
		return m
	}}
}

func (h *harness) last(key string) *fakeMod {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms := h.made[key]
	if len(ms) == 0 {
		return nil
	}
	return ms[len(ms)-1]
}

func newHarness(t *testing.T, cfg Config, roll Rollover, build func(h *harness) []registry.Entry) *harness {
	t.Helper()
	p, err := store.OpenPrefs(context.Background(), memory.New(), nil)
	require.NoError(t, err)
	h := &harness{made: map[string][]*fakeMod{}, clock: clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)), prefs: p, disp: present.NewLatest()}
	reg, err := registry.New(build(h)...)
	require.NoError(t, err)
	h.sched, err = New(Options{
		Registry: reg,
		Env:      module.Env{Prefs: p, Clock: h.clock},
		Rollover: roll,
		Display:  h.disp,
		Config:   cfg,
	})
	require.NoError(t, err)
	return h
}

func TestTwoModuleCadence(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{
			h.entry("b", 2, 5*time.Second, true, false),
			h.entry("a", 1, time.Second, true, false),
		}
	})
	ctx := context.Background()

	d := h.sched.Sweep(ctx)
	assert.Equal(t, time.Second, d)
	assert.EqualValues(t, 1, h.last("a").ticks.Load())
	assert.EqualValues(t, 1, h.last("b").ticks.Load())
	assert.Equal(t, "a1 • b1", h.disp.Get().Compact, "lower priority value renders first")

	h.clock.Advance(time.Second)
	d = h.sched.Sweep(ctx)
	assert.EqualValues(t, 2, h.last("a").ticks.Load())
	assert.EqualValues(t, 1, h.last("b").ticks.Load())
	assert.Equal(t, time.Second, d)
	assert.Equal(t, "a2 • b1", h.disp.Get().Compact)

	// just short of due: nothing ticks
	h.clock.Advance(999 * time.Millisecond)
	h.sched.Sweep(ctx)
	assert.EqualValues(t, 2, h.last("a").ticks.Load())

	e, ok := h.sched.Snapshot().Get("b")
	require.True(t, ok)
	v, _ := e.Points.Get("ticks")
	assert.Equal(t, "1", v)
}

func TestIntervalPreferenceIsLive(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{h.entry("a", 1, 10*time.Second, true, false)}
	})
	ctx := context.Background()
	h.sched.Sweep(ctx)
	h.prefs.SetLong("a_interval", 2000)
	h.clock.Advance(2 * time.Second)
	h.sched.Sweep(ctx)
	assert.EqualValues(t, 2, h.last("a").ticks.Load())
}

func TestSyncStartsAndStops(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{
			h.entry("a", 1, time.Second, true, false),
			h.entry("off", 2, time.Second, false, false),
		}
	})
	ctx := context.Background()
	h.sched.Sweep(ctx)
	assert.Nil(t, h.last("off"), "default-disabled module never instantiated")
	first := h.last("a")
	require.NotNil(t, first)

	h.prefs.SetModuleEnabled("a", false)
	h.clock.Advance(time.Second)
	d := h.sched.Sweep(ctx)
	assert.False(t, first.Alive())
	assert.EqualValues(t, 1, first.stops.Load())
	_, ok := h.sched.Snapshot().Get("a")
	assert.False(t, ok, "snapshot entry removed with the instance")
	assert.Equal(t, 5*time.Second, d, "idle delay with nothing alive")
	assert.Equal(t, present.AllDisabled, h.disp.Get().Compact)

	h.prefs.SetModuleEnabled("a", true)
	h.sched.Sweep(ctx)
	second := h.last("a")
	assert.NotSame(t, first, second, "re-enable creates a fresh instance")
	assert.EqualValues(t, 1, second.ticks.Load())
}

func TestPanickingModuleIsIsolated(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{
			h.entry("bad", 1, time.Second, true, true),
			h.entry("good", 2, time.Second, true, false),
		}
	})
	ctx := context.Background()
	h.sched.Sweep(ctx)
	h.clock.Advance(time.Second)
	h.sched.Sweep(ctx)
	assert.EqualValues(t, 2, h.last("good").ticks.Load())
	assert.EqualValues(t, 2, h.last("bad").ticks.Load(), "a panic does not stop future ticks")
	_, ok := h.sched.Snapshot().Get("bad")
	assert.True(t, ok)
}

func TestDelayClamp(t *testing.T) {
	h := newHarness(t, Config{MinDelay: 2 * time.Second, MaxDelay: 30 * time.Second}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{h.entry("slow", 1, 5*time.Minute, true, false)}
	})
	assert.Equal(t, 30*time.Second, h.sched.Sweep(context.Background()))

	h2 := newHarness(t, Config{MinDelay: 2 * time.Second}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{h.entry("fast", 1, time.Second, true, false)}
	})
	assert.Equal(t, 2*time.Second, h2.sched.Sweep(context.Background()))
}

type stepRoll struct {
	res rollover.Result
}

func (r *stepRoll) Check(time.Time) rollover.Result {
	out := r.res
	r.res = rollover.Result{}
	return out
}

func TestRolloverNotifiesAliveModules(t *testing.T) {
	roll := &stepRoll{}
	h := newHarness(t, Config{}, roll, func(h *harness) []registry.Entry {
		return []registry.Entry{h.entry("a", 1, time.Minute, true, false)}
	})
	ctx := context.Background()
	h.sched.Sweep(ctx)
	roll.res = rollover.Result{Day: true}
	h.sched.Sweep(ctx)
	assert.EqualValues(t, 1, h.last("a").days.Load())
}

func TestShutdownStopsEverything(t *testing.T) {
	h := newHarness(t, Config{MinDelay: 5 * time.Millisecond}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{h.entry("a", 1, time.Second, true, false)}
	})
	h.sched.Sweep(context.Background())
	m := h.last("a")
	require.NoError(t, h.sched.Shutdown(context.Background()))
	assert.False(t, m.Alive())
	assert.Equal(t, 0, h.sched.Snapshot().Len())

	ticks := m.ticks.Load()
	h.clock.Advance(time.Hour)
	h.sched.Sweep(context.Background())
	assert.Equal(t, ticks, m.ticks.Load(), "no tick after shutdown")
	require.ErrorIs(t, h.sched.Run(context.Background()), ErrShutdown)
	require.NoError(t, h.sched.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestRunLoopWithRealClock(t *testing.T) {
	p, err := store.OpenPrefs(context.Background(), memory.New(), nil)
	require.NoError(t, err)
	var ticks atomic.Int32
	info := module.Info{Key: "a", Priority: 1, DefaultEnabled: true, DefaultInterval: 20 * time.Millisecond}
	reg := registry.MustNew(registry.Entry{Info: info, New: func() module.Module {
		m := &countMod{fakeMod: fakeMod{Base: module.NewBase(info)}, n: &ticks}
		return m
	}})
	s, err := New(Options{Registry: reg, Env: module.Env{Prefs: p}, Config: Config{MinDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().Running)
	s.Kick()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-errc)
	after := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
	assert.Empty(t, s.Status().Alive)
}

type countMod struct {
	fakeMod
	n *atomic.Int32
}

func (c *countMod) Tick(ctx context.Context) { c.n.Add(1) }

func TestStatusReportsModules(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{
			h.entry("a", 1, time.Second, true, false),
			h.entry("b", 2, time.Second, false, false),
		}
	})
	h.sched.Sweep(context.Background())
	st := h.sched.Status()
	assert.Equal(t, []string{"a"}, st.Alive)
	require.Len(t, st.Modules, 2)
	assert.True(t, st.Modules[0].Alive)
	assert.NotNil(t, st.Modules[0].LastTick)
	assert.False(t, st.Modules[1].Enabled)
	_, ok := h.sched.Module("b")
	assert.False(t, ok)
	m, ok := h.sched.Module("a")
	require.True(t, ok)
	assert.Equal(t, "a", m.Key())
}

func TestPanickingIntervalIsIsolated(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
		return []registry.Entry{
			h.entry("bad", 1, time.Second, true, false),
			h.entry("good", 2, time.Second, true, false),
		}
	})
	ctx := context.Background()
	h.sched.Sweep(ctx)
	h.last("bad").panicInterval.Store(true)

	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Second)
		assert.NotPanics(t, func() { h.sched.Sweep(ctx) })
	}
	assert.EqualValues(t, 4, h.last("good").ticks.Load())
	assert.EqualValues(t, 1, h.last("bad").ticks.Load(), "no tick without a known interval")
	assert.Equal(t, []string{"bad", "good"}, h.sched.Status().Alive)
}

func TestCadenceFollowsComputedDelays(t *testing.T) {
	intervals := map[string]time.Duration{
		"a": time.Second,
		"b": 2500 * time.Millisecond,
		"c": 7 * time.Second,
		"d": 45 * time.Second,
	}
	h := newHarness(t, Config{MinDelay: 10 * time.Millisecond}, nil, func(h *harness) []registry.Entry {
		var out []registry.Entry
		prio := 1
		for _, k := range []string{"a", "b", "c", "d"} {
			out = append(out, h.entry(k, prio, intervals[k], true, false))
			prio++
		}
		return out
	})
	ctx := context.Background()

	var elapsed time.Duration
	for elapsed < 10*time.Minute {
		d := h.sched.Sweep(ctx)
		require.True(t, d > 0)
		h.clock.Advance(d)
		elapsed += d
	}
	for k, iv := range intervals {
		want := int64(elapsed / iv)
		got := int64(h.last(k).ticks.Load())
		assert.InDelta(t, want, got, 1, "module %s: %d ticks over %s at %s", k, got, elapsed, iv)
	}
}

// blockMod parks inside Tick until released.
type blockMod struct {
	fakeMod
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockMod) Tick(context.Context) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func TestShutdownTimeoutStillStopsModules(t *testing.T) {
	p, err := store.OpenPrefs(context.Background(), memory.New(), nil)
	require.NoError(t, err)
	info := module.Info{Key: "slow", Priority: 1, DefaultEnabled: true, DefaultInterval: time.Second}
	m := &blockMod{fakeMod: fakeMod{Base: module.NewBase(info)}, entered: make(chan struct{}), release: make(chan struct{})}
	reg := registry.MustNew(registry.Entry{Info: info, New: func() module.Module { return m }})
	s, err := New(Options{Registry: reg, Env: module.Env{Prefs: p}})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	<-m.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	close(m.release)
	require.NoError(t, <-errc)
	assert.False(t, m.Alive(), "loop exit stops modules after an abandoned shutdown")

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Empty(t, s.Status().Alive)
	assert.Equal(t, 0, s.Snapshot().Len())
	assert.EqualValues(t, 1, m.stops.Load())
}

func TestShutdownWithDoneContextAfterRunReturned(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, Config{}, nil, func(h *harness) []registry.Entry {
			return []registry.Entry{h.entry("a", 1, time.Second, true, false)}
		})
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() { errc <- h.sched.Run(ctx) }()
		require.Eventually(t, func() bool { return len(h.sched.Status().Alive) == 1 }, time.Second, time.Millisecond)
		cancel()
		require.ErrorIs(t, <-errc, context.Canceled)

		require.NoError(t, h.sched.Shutdown(ctx), "iteration %d", i)
		assert.Empty(t, h.sched.Status().Alive)
		assert.False(t, h.last("a").Alive())
	}
}

package modules

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/worker"
)

const (
	keySpeedAuto       = "spd_auto_test"
	keySpeedFreq       = "spd_test_freq" // minutes
	keySpeedWiFiOnly   = "spd_wifi_only"
	keySpeedDailyLimit = "spd_daily_limit"
	keySpeedShowPing   = "spd_show_ping"

	defaultSpeedFreq  = 60
	defaultSpeedLimit = 10
	// speedFirstDelay is the wait before the first automatic test.
	speedFirstDelay = 10 * time.Second

	speedWaiting   = "Waiting..."
	speedTesting   = "Testing..."
	speedNotWiFi   = "Skipped (not WiFi)"
	speedLimit     = "Daily limit reached"
	speedFailed    = "Failed"
	speedPoolBusy  = "Busy"
	speedNoLimitHi = 9999
)

var speedTestInfo = module.Info{
	Key:             "speedtest",
	Name:            "Speed Test",
	Emoji:           "🏎",
	Description:     "Periodic download/upload speed test",
	Priority:        80,
	DefaultEnabled:  false,
	IntervalKey:     "spd_interval",
	DefaultInterval: 30 * time.Second,
}

// SpeedResult is one completed probe run. Rates are NaN when a probe failed.
type SpeedResult struct {
	Download float64
	Upload   float64
	Ping     time.Duration
	PingOK   bool
}

// SpeedTest runs ping, download and upload probes on the worker pool.
// Results are picked up by the next Tick.
type SpeedTest struct {
	module.Base
	prober Prober

	mu         sync.Mutex
	pool       *worker.Pool
	ownPool    bool
	cancel     context.CancelFunc
	runCtx     context.Context
	pending    *worker.Future[SpeedResult]
	status     string
	result     SpeedResult
	hasResult  bool
	lastRun    time.Time
	nextAuto   time.Time
	testsToday int
}

// NewSpeedTest uses p for probes; nil selects the HTTP prober.
func NewSpeedTest(p Prober) *SpeedTest {
	if p == nil {
		p = NewHTTPProber(nil)
	}
	return &SpeedTest{Base: module.NewBase(speedTestInfo), prober: p, status: speedWaiting}
}

func (s *SpeedTest) Start(env module.Env) {
	s.Begin(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool, s.ownPool = env.Pool, false
	if s.pool == nil {
		s.pool, s.ownPool = worker.New(1, s.Log()), true
	}
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.pending = nil
	s.status = speedWaiting
	s.nextAuto = s.Now().Add(speedFirstDelay)
}

func (s *SpeedTest) Stop() {
	if !s.End() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.pending = nil
	if s.ownPool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.pool.Close(ctx)
	}
}

func (s *SpeedTest) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectLocked()
	p := s.Env().Prefs
	if !p.GetBool(keySpeedAuto, true) {
		return
	}
	now := s.Now()
	if now.Before(s.nextAuto) {
		return
	}
	freq := time.Duration(p.GetLong(keySpeedFreq, defaultSpeedFreq)) * time.Minute
	if freq <= 0 {
		freq = defaultSpeedFreq * time.Minute
	}
	s.nextAuto = now.Add(freq)
	s.runLocked(ctx)
}

// RunNow starts a test immediately. It reports whether a run was started;
// Status explains why not.
func (s *SpeedTest) RunNow(ctx context.Context) bool {
	if !s.Alive() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectLocked()
	return s.runLocked(ctx)
}

// Status is the text shown in place of the download rate.
func (s *SpeedTest) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether a probe run is in flight.
func (s *SpeedTest) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *SpeedTest) runLocked(ctx context.Context) bool {
	if s.pending != nil {
		return false
	}
	p := s.Env().Prefs
	if p.GetBool(keySpeedWiFiOnly, true) && !s.onWiFi(ctx) {
		s.status = speedNotWiFi
		s.lastRun = s.Now()
		return false
	}
	limit := p.GetInt(keySpeedDailyLimit, defaultSpeedLimit)
	if limit > 0 && limit < speedNoLimitHi && s.testsToday >= limit {
		s.status = speedLimit
		s.lastRun = s.Now()
		return false
	}

	cfg := access.DefaultSpeedTest()
	if h := s.Env().Access; h != nil {
		cfg = h.SpeedTest()
	}
	ping := p.GetBool(keySpeedShowPing, true)
	runCtx := s.runCtx
	prober := s.prober
	f, ok := worker.Submit(s.pool, func(poolCtx context.Context) (SpeedResult, error) {
		ctx, cancel := context.WithCancel(poolCtx)
		defer cancel()
		stop := context.AfterFunc(runCtx, cancel)
		defer stop()
		return probe(ctx, prober, cfg, ping), nil
	})
	if !ok {
		s.status = speedPoolBusy
		return false
	}
	s.pending = f
	s.status = speedTesting
	return true
}

func (s *SpeedTest) collectLocked() {
	if s.pending == nil {
		return
	}
	res, err, ok := s.pending.Poll()
	if !ok {
		return
	}
	s.pending = nil
	s.lastRun = s.Now()
	// TODO: testsToday is never reset by the day rollover, so
	// spd_daily_limit counts tests since the module started. Persist it as
	// a daily counter once the limit semantics are settled.
	s.testsToday++
	if err != nil {
		s.status = speedFailed
		return
	}
	s.result, s.hasResult = res, true
	if math.IsNaN(res.Download) {
		s.status = speedFailed
	} else {
		s.status = format.Mbps(res.Download)
	}
}

func (s *SpeedTest) onWiFi(ctx context.Context) bool {
	h := s.Env().Access
	if h == nil {
		return false
	}
	ifs, err := h.Interfaces(ctx)
	if err != nil {
		return false
	}
	return pickConnection(ifs).kind == access.KindWiFi.String()
}

func probe(ctx context.Context, p Prober, cfg access.SpeedTestConfig, ping bool) SpeedResult {
	r := SpeedResult{Download: math.NaN(), Upload: math.NaN()}
	if ping {
		if d, err := p.Ping(ctx, cfg.PingAddr); err == nil {
			r.Ping, r.PingOK = d, true
		}
	}
	if v, err := p.Download(ctx, cfg.DownloadURLs); err == nil {
		r.Download = v
	}
	if v, err := p.Upload(ctx, cfg.UploadURL); err == nil {
		r.Upload = v
	}
	return r
}

type speedView struct {
	status    string
	result    SpeedResult
	hasResult bool
	lastRun   time.Time
	tests     int
	testing   bool
}

func (s *SpeedTest) view() speedView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return speedView{s.status, s.result, s.hasResult, s.lastRun, s.testsToday, s.pending != nil}
}

func (v speedView) upload() string {
	if v.testing {
		return "..."
	}
	if !v.hasResult {
		return format.Unavailable
	}
	return format.Mbps(v.result.Upload)
}

func (v speedView) ping() string {
	if !v.hasResult || !v.result.PingOK {
		return format.Unavailable
	}
	return strconv.FormatInt(v.result.Ping.Milliseconds(), 10) + "ms"
}

func (s *SpeedTest) Compact() string { return "🏎↓" + s.view().status }

func (s *SpeedTest) Detail() string {
	v := s.view()
	ago := ""
	if !v.lastRun.IsZero() {
		if m := int(s.Now().Sub(v.lastRun).Minutes()); m < 1 {
			ago = " (just now)"
		} else {
			ago = fmt.Sprintf(" (%dm ago)", m)
		}
	}
	ping := ""
	if s.Env().Prefs.GetBool(keySpeedShowPing, true) {
		ping = " • Ping: " + v.ping()
	}
	return fmt.Sprintf("🏎 DL: %s • UL: %s%s%s\n   Tests today: %d", v.status, v.upload(), ping, ago, v.tests)
}

func (s *SpeedTest) DataPoints() module.DataPoints {
	v := s.view()
	return module.DataPoints{}.
		Add("speedtest.download", v.status).
		Add("speedtest.upload", v.upload()).
		Add("speedtest.ping", v.ping()).
		Add("speedtest.tests_today", strconv.Itoa(v.tests))
}

// Package extbox assembles the module scheduler, its collaborators and the
// HTTP API into an embeddable daemon.
package extbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/clock"
	"github.com/loykin/extbox/internal/config"
	"github.com/loykin/extbox/internal/cron"
	"github.com/loykin/extbox/internal/history"
	histfactory "github.com/loykin/extbox/internal/history/factory"
	"github.com/loykin/extbox/internal/logger"
	"github.com/loykin/extbox/internal/metrics"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/modules"
	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/internal/rollover"
	"github.com/loykin/extbox/internal/scheduler"
	"github.com/loykin/extbox/internal/server"
	"github.com/loykin/extbox/internal/store"
	storefactory "github.com/loykin/extbox/internal/store/factory"
	"github.com/loykin/extbox/internal/summary"
	"github.com/loykin/extbox/internal/worker"
)

// Re-export core types for external consumers.
type (
	Config       = config.Config
	Presentation = present.Presentation
	Status       = scheduler.Status
	Alert        = alert.Alert
	DataPoints   = module.DataPoints
	Prober       = modules.Prober
)

// PurgeJobName is the cron job that enforces history retention.
const PurgeJobName = "history-purge"

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Options overrides collaborators that are otherwise built from Config.
type Options struct {
	Log *slog.Logger
	// LevelVar, when set, is adjusted by Apply on config reloads.
	LevelVar *slog.LevelVar
	// Access defaults to the local host.
	Access access.Handle
	Prober Prober
	Clock  clock.Clock
	// Notifier and Display receive alerts and presentations in addition
	// to the built-in ones.
	Notifier alert.Notifier
	Display  present.Display
}

// Box is a wired daemon. Run it once; Close releases everything.
type Box struct {
	cfg    *Config
	log    *slog.Logger
	lv     *slog.LevelVar
	clock  clock.Clock
	store  store.Store
	prefs  *store.Prefs
	pool   *worker.Pool
	rec    *history.Recorder
	sched  *scheduler.Scheduler
	cron   *cron.Scheduler
	latest *present.Latest

	mu         sync.Mutex
	api        *http.Server
	metricsSrv *http.Server
	closeOnce  sync.Once
	closeErr   error
}

// New opens the preference store, seeds [defaults] and wires the
// scheduler with the built-in module catalog. Nothing runs until Run.
func New(ctx context.Context, cfg *Config, opts Options) (_ *Box, err error) {
	if cfg == nil {
		return nil, errors.New("extbox: config is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	b := &Box{cfg: cfg, log: log, lv: opts.LevelVar, clock: clk, latest: present.NewLatest()}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	b.store, err = storefactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	b.prefs, err = store.OpenPrefs(ctx, b.store, log)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if n := b.prefs.SeedDefaults(cfg.DefaultPrefs()); n > 0 {
		log.Info("seeded preference defaults", "count", n)
	}

	b.pool = worker.New(cfg.Workers.Size, log)

	notifiers := alert.Multi{alert.LogNotifier{Log: log}}
	if cfg.Notifier.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout, b.pool, log))
	}
	if cfg.History.Enabled {
		sinks, err := histfactory.NewSinksFromDSNs(cfg.History.DSNs())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		b.rec = history.NewRecorder(sinks, b.pool, log)
		if !cfg.History.Snapshots {
			b.rec.SkipSnapshots()
		}
		notifiers = append(notifiers, b.rec)
	}
	if opts.Notifier != nil {
		notifiers = append(notifiers, opts.Notifier)
	}
	var notifier alert.Notifier = notifiers
	if cfg.Notifier.Every > 0 {
		notifier = alert.NewRateLimited(notifiers, cfg.Notifier.Every, cfg.Notifier.Burst, log)
	}

	host := opts.Access
	if host == nil {
		host = access.NewHost(cfg.Access, log)
	}

	displays := present.Multi{b.latest, &present.LogDisplay{Log: log}}
	if opts.Display != nil {
		displays = append(displays, opts.Display)
	}
	so := scheduler.Options{
		Registry: modules.Catalog(opts.Prober),
		Env: module.Env{
			Prefs:  b.prefs,
			Access: host,
			Alerts: notifier,
			Pool:   b.pool,
			Clock:  clk,
			Log:    log,
		},
		Rollover: rollover.New(b.prefs, rollover.DefaultPlan(), log),
		Display:  displays,
		Config:   scheduler.Config(cfg.Scheduler),
	}
	if b.rec != nil {
		so.Recorder = b.rec
	}
	b.sched, err = scheduler.New(so)
	if err != nil {
		return nil, err
	}

	b.cron = cron.NewScheduler(cfg.Summary.Location(), log)
	if cfg.Summary.Enabled {
		if err := b.cron.Add(summary.New(b.prefs, notifier, clk).Job(cfg.Summary.Schedule)); err != nil {
			return nil, fmt.Errorf("night summary: %w", err)
		}
	}
	if b.rec != nil && cfg.History.Retention > 0 && cfg.History.PurgeSchedule != "" {
		if err := b.cron.Add(&cron.Job{Name: PurgeJobName, Schedule: cfg.History.PurgeSchedule, Run: b.purge}); err != nil {
			return nil, fmt.Errorf("history purge: %w", err)
		}
	}
	return b, nil
}

func (b *Box) purge(ctx context.Context) {
	if _, err := b.rec.Purge(ctx, b.clock.Now(), b.cfg.History.Retention); err != nil {
		b.log.Warn("history purge failed", "error", err)
	}
}

func (b *Box) Prefs() *store.Prefs             { return b.prefs }
func (b *Box) Scheduler() *scheduler.Scheduler { return b.sched }
func (b *Box) Cron() *cron.Scheduler           { return b.cron }
func (b *Box) Presentation() Presentation      { return b.latest.Get() }
func (b *Box) Status() Status                  { return b.sched.Status() }

// History is nil when history recording is disabled.
func (b *Box) History() *history.Recorder { return b.rec }

// Handler serves the HTTP API for embedding in another server.
func (b *Box) Handler(basePath string) http.Handler {
	return server.NewRouter(b.serverOptions(), basePath).Handler()
}

func (b *Box) serverOptions() server.Options {
	o := server.Options{
		Scheduler: b.sched,
		Prefs:     b.prefs,
		Display:   b.latest,
		Metrics:   b.cfg.Metrics.Enabled,
		Log:       b.log,
	}
	if b.rec != nil {
		o.History = b.rec
	}
	return o
}

// Apply takes a reloaded configuration: the log level and [defaults] for
// keys that are still unset. Other sections need a restart.
func (b *Box) Apply(c *Config) {
	if b.lv != nil {
		if lvl, err := logger.ParseLevel(c.Log.Level); err == nil && lvl != b.lv.Level() {
			b.lv.Set(lvl)
			b.log.Info("log level changed", "level", lvl)
		}
	}
	if n := b.prefs.SeedDefaults(c.DefaultPrefs()); n > 0 {
		b.log.Info("seeded preference defaults", "count", n)
		b.sched.Kick()
	}
}

// Run starts the cron jobs, the API and metrics listeners, then sweeps
// until ctx is cancelled. Everything is shut down before Run returns.
func (b *Box) Run(ctx context.Context) error {
	if err := b.start(); err != nil {
		_ = b.Close(context.Background())
		return err
	}
	err := b.sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, b.Close(sctx))
}

func (b *Box) start() error {
	if err := b.cron.Start(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Server.Enabled {
		srv, err := server.NewServer(b.cfg.Server, b.serverOptions())
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		b.api = srv
	}
	if b.cfg.Metrics.Enabled && b.cfg.Metrics.Listen != "" && b.cfg.Metrics.Listen != b.cfg.Server.Listen {
		srv, err := serveMetrics(b.cfg.Metrics.Listen, b.log)
		if err != nil {
			return err
		}
		b.metricsSrv = srv
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", srv.Addr)
	return srv, nil
}

// APIAddr is the bound API address, empty before Run or when disabled.
func (b *Box) APIAddr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.api == nil {
		return ""
	}
	return b.api.Addr
}

// Close stops listeners, jobs and modules, drains the worker pool and
// closes the stores. It is safe to call more than once.
func (b *Box) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		var errs []error
		b.mu.Lock()
		for _, srv := range []*http.Server{b.api, b.metricsSrv} {
			if srv != nil {
				errs = append(errs, srv.Shutdown(ctx))
			}
		}
		b.mu.Unlock()
		if b.cron != nil {
			errs = append(errs, b.cron.Stop(ctx))
		}
		if b.sched != nil {
			errs = append(errs, b.sched.Shutdown(ctx))
		}
		if b.pool != nil {
			errs = append(errs, b.pool.Close(ctx))
		}
		if b.rec != nil {
			errs = append(errs, b.rec.Close())
		}
		if b.store != nil {
			errs = append(errs, b.store.Close())
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}

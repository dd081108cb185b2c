package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/extbox/internal/config"
	"github.com/loykin/extbox/internal/history"
	"github.com/loykin/extbox/internal/metrics"
	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/internal/scheduler"
	"github.com/loykin/extbox/internal/store"
	exttls "github.com/loykin/extbox/internal/tls"
	"github.com/loykin/extbox/pkg/client"
)

// Router provides embeddable HTTP handlers over a running scheduler.
// Endpoints, relative to basePath:
//
//	GET  /status, /snapshot, /snapshot/:key, /presentation, /modules
//	POST /modules/:key/enable, /modules/:key/disable
//	PUT  /order
//	GET  /prefs, /prefs/:key    PUT /prefs/:key
//	POST /prefs/import, /prefs/reset-daily
//	POST /events/screen, /events/unlock, /events/steps
//	POST /fap/increment, /speedtest/run
//	GET  /history, /history/:key    query: since=24h|RFC3339, limit=N
//	GET  /metrics (when enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sched    *scheduler.Scheduler
	prefs    *store.Prefs
	display  Presenter
	hist     history.Querier
	metrics  bool
	log      *slog.Logger
	basePath string
}

// Presenter exposes the last rendered presentation.
type Presenter interface {
	Get() present.Presentation
}

// Options wires a Router. Scheduler and Prefs are required; History may
// be nil when no queryable sink is configured.
type Options struct {
	Scheduler *scheduler.Scheduler
	Prefs     *store.Prefs
	Display   Presenter
	History   history.Querier
	Metrics   bool
	Log       *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(opts Options, basePath string) *Router {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		sched:    opts.Scheduler,
		prefs:    opts.Prefs,
		display:  opts.Display,
		hist:     opts.History,
		metrics:  opts.Metrics,
		log:      log.With("component", "api"),
		basePath: sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/snapshot", r.handleSnapshotAll)
	group.GET("/snapshot/:key", r.handleSnapshot)
	group.GET("/presentation", r.handlePresentation)
	group.GET("/modules", r.handleModules)
	group.POST("/modules/:key/enable", r.handleEnable(true))
	group.POST("/modules/:key/disable", r.handleEnable(false))
	group.PUT("/order", r.handleOrder)
	group.GET("/prefs", r.handlePrefs)
	group.GET("/prefs/:key", r.handlePrefGet)
	group.PUT("/prefs/:key", r.handlePrefSet)
	group.POST("/prefs/import", r.handlePrefsImport)
	group.POST("/prefs/reset-daily", r.handleResetDaily)
	group.POST("/events/screen", r.handleScreen)
	group.POST("/events/unlock", r.handleUnlock)
	group.POST("/events/steps", r.handleSteps)
	group.POST("/fap/increment", r.handleFap)
	group.POST("/speedtest/run", r.handleSpeedTest)
	group.GET("/history", r.handleHistory)
	group.GET("/history/:key", r.handleHistory)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer listens on cfg.Listen and serves the router in the background,
// over TLS when cfg.TLS is enabled. Listen errors are returned; the
// server's Addr holds the bound address.
func NewServer(cfg config.ServerConfig, opts Options) (*http.Server, error) {
	tlsCfg, err := exttls.ForServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	r := NewRouter(opts, cfg.BasePath)
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("api server stopped", "error", err)
		}
	}()
	r.log.Info("api listening", "addr", server.Addr, "base", r.basePath, "tls", tlsCfg != nil)
	return server, nil
}

// --- Handlers ---

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, client.ErrorResponse{Error: msg})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sched.Status())
}

func (r *Router) handleSnapshotAll(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sched.Snapshot().All())
}

func (r *Router) handleSnapshot(c *gin.Context) {
	key := c.Param("key")
	if !isSafeKey(key) {
		badRequest(c, "invalid module key")
		return
	}
	e, ok := r.sched.Snapshot().Get(key)
	if !ok {
		writeJSON(c, http.StatusNotFound, client.ErrorResponse{Error: "no snapshot for " + key})
		return
	}
	writeJSON(c, http.StatusOK, e)
}

func (r *Router) handlePresentation(c *gin.Context) {
	if r.display == nil {
		writeJSON(c, http.StatusOK, present.Placeholder)
		return
	}
	writeJSON(c, http.StatusOK, r.display.Get())
}

func (r *Router) handleModules(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sched.Status().Modules)
}

func (r *Router) handleEnable(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if !isSafeKey(key) {
			badRequest(c, "invalid module key")
			return
		}
		if !r.sched.Registry().Has(key) {
			writeJSON(c, http.StatusNotFound, client.ErrorResponse{Error: "unknown module " + key})
			return
		}
		r.prefs.SetModuleEnabled(key, on)
		r.sched.Kick()
		r.log.Info("module toggled", "module", key, "enabled", on)
		writeJSON(c, http.StatusOK, client.OKResponse{OK: true})
	}
}

func (r *Router) handleOrder(c *gin.Context) {
	var req client.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	reg := r.sched.Registry()
	for _, k := range req.Order {
		if !reg.Has(k) {
			badRequest(c, "unknown module "+k)
			return
		}
	}
	r.prefs.SetString(present.OrderKey, strings.Join(req.Order, ","))
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.OKResponse{OK: true})
}

func (r *Router) handlePrefs(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.prefs.All())
}

func (r *Router) handlePrefGet(c *gin.Context) {
	key := c.Param("key")
	if !isSafeKey(key) {
		badRequest(c, "invalid preference key")
		return
	}
	if !r.prefs.Has(key) {
		writeJSON(c, http.StatusNotFound, client.ErrorResponse{Error: "preference not set: " + key})
		return
	}
	writeJSON(c, http.StatusOK, client.PrefValue{Key: key, Value: r.prefs.GetString(key, "")})
}

func (r *Router) handlePrefSet(c *gin.Context) {
	key := c.Param("key")
	if !isSafeKey(key) {
		badRequest(c, "invalid preference key")
		return
	}
	var req client.PrefValue
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	r.prefs.SetString(key, req.Value)
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.PrefValue{Key: key, Value: req.Value})
}

func (r *Router) handlePrefsImport(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := r.prefs.ImportJSON(body); err != nil {
		badRequest(c, err.Error())
		return
	}
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.OKResponse{OK: true})
}

func (r *Router) handleResetDaily(c *gin.Context) {
	r.prefs.ResetDaily()
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.OKResponse{OK: true})
}

type (
	screenReceiver interface{ OnScreen(on bool) }
	unlockReceiver interface{ OnUnlock() bool }
	stepReceiver   interface{ OnStepCounter(raw float64) int64 }
	counter        interface{ Increment() int }
	speedRunner    interface {
		RunNow(ctx context.Context) bool
		Status() string
	}
)

// running returns the alive module key as T, or writes 409 when the module
// is disabled or not yet started.
func running[T any](r *Router, c *gin.Context, key string) (T, bool) {
	var zero T
	m, ok := r.sched.Module(key)
	if !ok {
		writeJSON(c, http.StatusConflict, client.ErrorResponse{Error: "module " + key + " is not running"})
		return zero, false
	}
	t, ok := m.(T)
	if !ok {
		writeJSON(c, http.StatusConflict, client.ErrorResponse{Error: "module " + key + " does not accept this event"})
		return zero, false
	}
	return t, true
}

func (r *Router) handleScreen(c *gin.Context) {
	var req client.ScreenEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	m, ok := running[screenReceiver](r, c, "screen")
	if !ok {
		return
	}
	m.OnScreen(req.On)
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.OKResponse{OK: true})
}

func (r *Router) handleUnlock(c *gin.Context) {
	m, ok := running[unlockReceiver](r, c, "unlock")
	if !ok {
		return
	}
	counted := m.OnUnlock()
	if counted {
		r.sched.Kick()
	}
	writeJSON(c, http.StatusOK, client.UnlockResult{Counted: counted})
}

func (r *Router) handleSteps(c *gin.Context) {
	var req client.StepsEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.Raw < 0 {
		badRequest(c, "raw must not be negative")
		return
	}
	m, ok := running[stepReceiver](r, c, "steps")
	if !ok {
		return
	}
	added := m.OnStepCounter(req.Raw)
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.StepsResult{Added: added})
}

func (r *Router) handleFap(c *gin.Context) {
	m, ok := running[counter](r, c, "fap")
	if !ok {
		return
	}
	today := m.Increment()
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.FapResult{Today: today})
}

func (r *Router) handleSpeedTest(c *gin.Context) {
	m, ok := running[speedRunner](r, c, "speedtest")
	if !ok {
		return
	}
	started := m.RunNow(c.Request.Context())
	r.sched.Kick()
	writeJSON(c, http.StatusOK, client.SpeedTestResult{Started: started, Status: m.Status()})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		writeJSON(c, http.StatusServiceUnavailable, client.ErrorResponse{Error: "history is not queryable"})
		return
	}
	key := c.Param("key")
	if key != "" && !isSafeKey(key) {
		badRequest(c, "invalid module key")
		return
	}
	since, err := parseSince(c.Query("since"), time.Now())
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	evs, err := r.hist.Query(c.Request.Context(), key, since, limit)
	if errors.Is(err, history.ErrNoQuerier) {
		writeJSON(c, http.StatusServiceUnavailable, client.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		r.log.Warn("history query failed", "module", key, "error", err)
		writeJSON(c, http.StatusInternalServerError, client.ErrorResponse{Error: err.Error()})
		return
	}
	if evs == nil {
		evs = []history.Event{}
	}
	writeJSON(c, http.StatusOK, evs)
}

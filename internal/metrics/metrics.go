package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Number of scheduler sweeps.",
		},
	)
	nextWake = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "extbox",
			Subsystem: "scheduler",
			Name:      "next_wake_seconds",
			Help:      "Delay chosen for the next sweep.",
		},
	)
	moduleTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "module",
			Name:      "ticks_total",
			Help:      "Number of module ticks.",
		}, []string{"module"},
	)
	moduleTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "extbox",
			Subsystem: "module",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in Tick plus CheckAlerts.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"module"},
	)
	modulePanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "module",
			Name:      "panics_total",
			Help:      "Panics recovered from module calls.",
		}, []string{"module", "phase"},
	)
	moduleAlive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "extbox",
			Subsystem: "module",
			Name:      "alive",
			Help:      "1 while the module instance is running.",
		}, []string{"module"},
	)
	alertsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Alerts raised.",
		}, []string{"alert"},
	)
	alertsCleared = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "alerts",
			Name:      "cleared_total",
			Help:      "Alert flags cleared by recovery.",
		}, []string{"alert"},
	)
	alertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Alerts dropped by the delivery rate limit.",
		},
	)
	rollovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "rollover",
			Name:      "total",
			Help:      "Calendar rollovers applied.",
		}, []string{"kind"},
	)
	historyEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "history",
			Name:      "events_total",
			Help:      "History events by delivery result.",
		}, []string{"result"},
	)
	workerRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "extbox",
			Subsystem: "workers",
			Name:      "rejected_total",
			Help:      "Jobs rejected because the pool was saturated or closed.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		sweeps, nextWake, moduleTicks, moduleTickDuration, modulePanics, moduleAlive,
		alertsFired, alertsCleared, alertsDropped, rollovers, historyEvents, workerRejected,
		newSelfCollector(),
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncSweep() {
	if regOK.Load() {
		sweeps.Inc()
	}
}

func SetNextWake(seconds float64) {
	if regOK.Load() {
		nextWake.Set(seconds)
	}
}

func ObserveTick(module string, seconds float64) {
	if regOK.Load() {
		moduleTicks.WithLabelValues(module).Inc()
		moduleTickDuration.WithLabelValues(module).Observe(seconds)
	}
}

func IncPanic(module, phase string) {
	if regOK.Load() {
		modulePanics.WithLabelValues(module, phase).Inc()
	}
}

func SetAlive(module string, alive bool) {
	if regOK.Load() {
		v := 0.0
		if alive {
			v = 1
		}
		moduleAlive.WithLabelValues(module).Set(v)
	}
}

func IncAlertFired(id string) {
	if regOK.Load() {
		alertsFired.WithLabelValues(id).Inc()
	}
}

func IncAlertCleared(id string) {
	if regOK.Load() {
		alertsCleared.WithLabelValues(id).Inc()
	}
}

func IncAlertDropped() {
	if regOK.Load() {
		alertsDropped.Inc()
	}
}

func IncRollover(kind string) {
	if regOK.Load() {
		rollovers.WithLabelValues(kind).Inc()
	}
}

func IncHistory(result string) {
	if regOK.Load() {
		historyEvents.WithLabelValues(result).Inc()
	}
}

func IncWorkerRejected() {
	if regOK.Load() {
		workerRejected.Inc()
	}
}

package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/metrics"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/rollover"
	"github.com/loykin/extbox/internal/worker"
)

// ErrNoQuerier is returned when no configured sink can read events back.
var ErrNoQuerier = errors.New("history sink does not support queries")

const sendTimeout = 10 * time.Second

// Recorder turns scheduler output and alerts into events and writes them
// on the worker pool. Events are dropped, never queued, when the pool is
// saturated.
type Recorder struct {
	sink Sink
	pool *worker.Pool
	log  *slog.Logger
	// noSnapshots keeps alerts and rollovers but drops per-tick readings.
	noSnapshots bool
}

func NewRecorder(sink Sink, pool *worker.Pool, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sink: sink, pool: pool, log: log.With("component", "history")}
}

// SkipSnapshots stops RecordSnapshot from writing. Call before use.
func (r *Recorder) SkipSnapshots() *Recorder {
	r.noSnapshots = true
	return r
}

func (r *Recorder) RecordSnapshot(_ context.Context, key string, at time.Time, dp module.DataPoints) {
	if r.noSnapshots {
		return
	}
	e := NewEvent(EventSnapshot, key, at)
	e.Data = dp
	r.submit(e)
}

func (r *Recorder) RecordRollover(_ context.Context, at time.Time, res rollover.Result) {
	if !res.Any() {
		return
	}
	var kinds []string
	if res.Day {
		kinds = append(kinds, "day")
	}
	if res.Month {
		kinds = append(kinds, "month")
	}
	if res.Billing {
		kinds = append(kinds, "billing")
	}
	e := NewEvent(EventRollover, "", at)
	e.Message = strings.Join(kinds, ",")
	r.submit(e)
}

// Raise records an alert, so a Recorder can sit in an alert.Multi.
func (r *Recorder) Raise(_ context.Context, a alert.Alert) {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	e := NewEvent(EventAlert, a.Module, at)
	e.Data = module.DataPoints{}.Add("alert.id", a.ID).Add("alert.title", a.Title)
	e.Message = a.Body
	r.submit(e)
}

func (r *Recorder) submit(e Event) {
	ok := r.pool.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := r.sink.Send(ctx, e); err != nil {
			metrics.IncHistory("error")
			r.log.Warn("history write failed", "type", e.Type, "module", e.Module, "error", err)
			return
		}
		metrics.IncHistory("ok")
	})
	if !ok {
		metrics.IncHistory("dropped")
		r.log.Debug("history event dropped, pool busy", "type", e.Type, "module", e.Module)
	}
}

// Query reads events back when the sink supports it.
func (r *Recorder) Query(ctx context.Context, mod string, since time.Time, limit int) ([]Event, error) {
	q, ok := r.sink.(Querier)
	if !ok {
		return nil, ErrNoQuerier
	}
	return q.Query(ctx, mod, since, limit)
}

// Purge deletes events older than retention relative to now. Sinks
// without retention support are left alone.
func (r *Recorder) Purge(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	p, ok := r.sink.(Purger)
	if !ok || retention <= 0 {
		return 0, nil
	}
	n, err := p.PurgeOlderThan(ctx, now.Add(-retention))
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.log.Info("history purged", "deleted", n, "retention", retention)
	}
	return n, nil
}

func (r *Recorder) Close() error {
	if c, ok := r.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

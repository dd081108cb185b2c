package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/loykin/extbox/internal/metrics"
	"github.com/loykin/extbox/internal/worker"
)

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) Raise(_ context.Context, a Alert) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("alert", "id", a.ID, "module", a.Module, "title", a.Title, "body", a.Body)
}

// Multi fans an alert out to every notifier.
type Multi []Notifier

func (m Multi) Raise(ctx context.Context, a Alert) {
	for _, n := range m {
		if n != nil {
			n.Raise(ctx, a)
		}
	}
}

// RateLimited drops alerts beyond a token bucket so a flapping sensor
// cannot flood the downstream channel.
type RateLimited struct {
	next Notifier
	lim  *rate.Limiter
	log  *slog.Logger
}

func NewRateLimited(next Notifier, every time.Duration, burst int, log *slog.Logger) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &RateLimited{next: next, lim: rate.NewLimiter(rate.Every(every), burst), log: log}
}

func (r *RateLimited) Raise(ctx context.Context, a Alert) {
	if !r.lim.Allow() {
		metrics.IncAlertDropped()
		r.log.Warn("alert dropped by rate limit", "id", a.ID)
		return
	}
	r.next.Raise(ctx, a)
}

// webhookPayload is the JSON body posted to the webhook.
type webhookPayload struct {
	EventID string `json:"event_id"`
	Alert
}

// Webhook POSTs alerts as JSON. Delivery runs on the worker pool.
type Webhook struct {
	url    string
	client *http.Client
	pool   *worker.Pool
	log    *slog.Logger
}

func NewWebhook(url string, timeout time.Duration, pool *worker.Pool, log *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, pool: pool, log: log}
}

func (w *Webhook) Raise(_ context.Context, a Alert) {
	body, err := json.Marshal(webhookPayload{EventID: uuid.NewString(), Alert: a})
	if err != nil {
		w.log.Error("encode alert", "error", err)
		return
	}
	ok := w.pool.Go(func(ctx context.Context) {
		if err := w.post(ctx, body); err != nil {
			w.log.Warn("webhook delivery failed", "id", a.ID, "error", err)
		}
	})
	if !ok {
		w.log.Warn("webhook delivery skipped, pool busy", "id", a.ID)
	}
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Collector keeps raised alerts in memory; the API lists recent ones.
type Collector struct {
	mu     sync.Mutex
	max    int
	alerts []Alert
}

func NewCollector(max int) *Collector {
	if max <= 0 {
		max = 100
	}
	return &Collector{max: max}
}

func (c *Collector) Raise(_ context.Context, a Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	if len(c.alerts) > c.max {
		c.alerts = c.alerts[len(c.alerts)-c.max:]
	}
}

// Recent returns alerts oldest first.
func (c *Collector) Recent() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// IDs lists the raised alert IDs in order.
func (c *Collector) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.alerts))
	for i, a := range c.alerts {
		ids[i] = a.ID
	}
	return ids
}

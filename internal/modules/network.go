package modules

import (
	"context"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

var networkInfo = module.Info{
	Key:             "network",
	Name:            "Network Speed",
	Emoji:           "📶",
	Description:     "Real-time download and upload speed",
	Priority:        40,
	DefaultEnabled:  true,
	IntervalKey:     "net_interval",
	DefaultInterval: 3 * time.Second,
}

// Network smooths the byte rate as 0.6*new + 0.4*previous.
type Network struct {
	module.Base

	mu       sync.Mutex
	prevRx   uint64
	prevTx   uint64
	prevTime time.Time
	has      bool
	down     int64
	up       int64
}

func NewNetwork() *Network { return &Network{Base: module.NewBase(networkInfo)} }

func (n *Network) Start(env module.Env) {
	n.Begin(env)
	n.mu.Lock()
	n.has, n.down, n.up = false, 0, 0
	n.mu.Unlock()
	n.Tick(context.Background())
}

func (n *Network) Stop() {
	if n.End() {
		n.mu.Lock()
		n.down, n.up = 0, 0
		n.mu.Unlock()
	}
}

func (n *Network) Tick(ctx context.Context) {
	h := n.Env().Access
	if h == nil {
		return
	}
	cs, err := h.NetCounters(ctx)
	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.down, n.up = 0, 0
		return
	}
	rx, tx := sumCounters(cs)
	now := n.Now()
	if n.has {
		if dt := now.Sub(n.prevTime).Milliseconds(); dt > 0 {
			rawDown := int64(delta(rx, n.prevRx)) * 1000 / dt
			rawUp := int64(delta(tx, n.prevTx)) * 1000 / dt
			n.down = (rawDown*6 + n.down*4) / 10
			n.up = (rawUp*6 + n.up*4) / 10
		}
	}
	n.prevRx, n.prevTx, n.prevTime, n.has = rx, tx, now, true
}

// sumCounters totals every non-loopback interface.
func sumCounters(cs []access.NetCounter) (rx, tx uint64) {
	for _, c := range cs {
		if access.Classify(c.Name) == access.KindLoopback {
			continue
		}
		rx += c.RxBytes
		tx += c.TxBytes
	}
	return rx, tx
}

// delta treats a counter reset as zero traffic.
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func (n *Network) rates() (down, up int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.down, n.up
}

func (n *Network) Compact() string {
	d, u := n.rates()
	return "↓" + format.Speed(d) + " ↑" + format.Speed(u)
}

func (n *Network) Detail() string {
	d, u := n.rates()
	return "📶 Download: " + format.Speed(d) + "\n   Upload: " + format.Speed(u)
}

func (n *Network) DataPoints() module.DataPoints {
	d, u := n.rates()
	return module.DataPoints{}.
		Add("net.download", format.Speed(d)).
		Add("net.upload", format.Speed(u))
}

package modules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/module"
)

var connectionInfo = module.Info{
	Key:             "connection",
	Name:            "Connection Info",
	Emoji:           "📡",
	Description:     "WiFi, mobile, ethernet, VPN status",
	Priority:        90,
	DefaultEnabled:  false,
	IntervalKey:     "con_interval",
	DefaultInterval: 10 * time.Second,
}

// transportOrder decides which interface is reported as active.
var transportOrder = []access.Kind{access.KindEthernet, access.KindWiFi, access.KindMobile, access.KindOther}

type connState struct {
	kind   string
	iface  string
	addrs  []string
	signal int
	hasSig bool
	vpn    bool
}

// Connection reports the active transport from the interface list.
type Connection struct {
	module.Base

	mu    sync.Mutex
	state connState
}

func NewConnection() *Connection {
	return &Connection{Base: module.NewBase(connectionInfo), state: connState{kind: "None"}}
}

func (c *Connection) Start(env module.Env) { c.Begin(env) }
func (c *Connection) Stop()                { c.End() }

func (c *Connection) Tick(ctx context.Context) {
	h := c.Env().Access
	if h == nil {
		return
	}
	ifs, err := h.Interfaces(ctx)
	if err != nil {
		c.set(connState{kind: "Error"})
		return
	}
	st := pickConnection(ifs)
	if st.kind == access.KindWiFi.String() {
		if sig, err := h.WirelessSignal(ctx); err == nil {
			st.signal, st.hasSig = sig[st.iface]
		}
	}
	c.set(st)
}

// pickConnection chooses the best up interface that has an address.
func pickConnection(ifs []access.Interface) connState {
	st := connState{kind: "None"}
	best := len(transportOrder)
	for _, i := range ifs {
		if !i.Up {
			continue
		}
		if i.Kind == access.KindVPN {
			st.vpn = true
			continue
		}
		if len(i.Addrs) == 0 {
			continue
		}
		for rank, k := range transportOrder {
			if i.Kind == k && rank < best {
				best = rank
				st.kind, st.iface, st.addrs = k.String(), i.Name, i.Addrs
			}
		}
	}
	return st
}

func (c *Connection) set(st connState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *Connection) get() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (st connState) signalStr() string {
	if !st.hasSig {
		return "—"
	}
	return fmt.Sprintf("%d dBm", st.signal)
}

func (c *Connection) Compact() string {
	st := c.get()
	switch st.kind {
	case "WiFi":
		return "WiFi " + st.signalStr()
	case "Mobile", "Ethernet":
		return st.kind + " " + st.iface
	default:
		return "📡 " + st.kind
	}
}

func (c *Connection) Detail() string {
	st := c.get()
	var sb strings.Builder
	switch st.kind {
	case "WiFi":
		fmt.Fprintf(&sb, "📡 WiFi: %s (%s)", st.iface, st.signalStr())
	case "None", "Error":
		sb.WriteString("📡 " + st.kind)
	default:
		fmt.Fprintf(&sb, "📡 %s: %s", st.kind, st.iface)
	}
	if len(st.addrs) > 0 {
		sb.WriteString("\n   " + strings.Join(st.addrs, ", "))
	}
	if st.vpn {
		sb.WriteString("\n   VPN: Active")
	}
	return sb.String()
}

func (c *Connection) DataPoints() module.DataPoints {
	st := c.get()
	d := module.DataPoints{}.Add("conn.type", st.kind)
	if st.iface != "" {
		d = d.Add("conn.interface", st.iface)
	}
	if st.kind == "WiFi" {
		d = d.Add("conn.rssi", st.signalStr())
	}
	if len(st.addrs) > 0 {
		d = d.Add("conn.addr", st.addrs[0])
	}
	vpn := "None"
	if st.vpn {
		vpn = "Active"
	}
	return d.Add("conn.vpn", vpn)
}

package modules

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

var cpuRAMInfo = module.Info{
	Key:             "cpu_ram",
	Name:            "CPU & RAM",
	Emoji:           "🧠",
	Description:     "CPU usage, temperature, memory",
	Priority:        15,
	DefaultEnabled:  true,
	IntervalKey:     "cpu_interval",
	DefaultInterval: 5 * time.Second,
}

// CPURAM derives CPU usage from consecutive cumulative samples.
type CPURAM struct {
	module.Base

	mu    sync.Mutex
	prev  access.CPUSample
	has   bool
	usage float64 // NaN until two samples exist
	temp  float64
	mem   access.Memory
	memOK bool
}

func NewCPURAM() *CPURAM {
	return &CPURAM{Base: module.NewBase(cpuRAMInfo), usage: access.NaN, temp: access.NaN}
}

func (c *CPURAM) Start(env module.Env) {
	c.Begin(env)
	c.mu.Lock()
	c.has = false
	c.usage = access.NaN
	c.mu.Unlock()
	if h := env.Access; h != nil {
		if s, err := h.CPU(context.Background()); err == nil {
			c.mu.Lock()
			c.prev, c.has = s, true
			c.mu.Unlock()
		}
	}
}

func (c *CPURAM) Stop() { c.End() }

func (c *CPURAM) Tick(ctx context.Context) {
	h := c.Env().Access
	if h == nil {
		return
	}
	s, cpuErr := h.CPU(ctx)
	temp := h.CPUTemp(ctx)
	m, memErr := h.Memory(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cpuErr == nil {
		if c.has {
			if u, ok := usage(c.prev, s); ok {
				c.usage = u
			}
		}
		c.prev, c.has = s, true
	}
	c.temp = temp
	if memErr == nil {
		c.mem, c.memOK = m, true
	}
}

// usage is busy time over total time between two samples, in percent.
func usage(prev, cur access.CPUSample) (float64, bool) {
	total := cur.Total - prev.Total
	if total <= 0 {
		return 0, false
	}
	u := (cur.Busy - prev.Busy) * 100 / total
	return math.Max(0, math.Min(100, u)), true
}

type cpuView struct {
	usage float64
	temp  float64
	mem   access.Memory
	memOK bool
}

func (c *CPURAM) view() cpuView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cpuView{usage: c.usage, temp: c.temp, mem: c.mem, memOK: c.memOK}
}

func (v cpuView) ramPct() float64 {
	if !v.memOK || v.mem.Total == 0 {
		return 0
	}
	return float64(v.mem.Used) * 100 / float64(v.mem.Total)
}

func (c *CPURAM) Compact() string {
	v := c.view()
	cpu := "--"
	if !math.IsNaN(v.usage) {
		cpu = fmt.Sprintf("%d%%", int(v.usage))
	}
	temp := ""
	if !math.IsNaN(v.temp) {
		temp = " " + format.Temp(v.temp)
	}
	return fmt.Sprintf("CPU:%s%s RAM:%d%%", cpu, temp, int(v.ramPct()))
}

func (c *CPURAM) Detail() string {
	v := c.view()
	var sb strings.Builder
	cpu := "--"
	if !math.IsNaN(v.usage) {
		cpu = format.Pct(v.usage)
	}
	sb.WriteString("🧠 CPU: " + cpu)
	if !math.IsNaN(v.temp) {
		sb.WriteString(" • " + format.Temp(v.temp))
	}
	fmt.Fprintf(&sb, "\n   RAM: %s / %s (%d%%)\n", format.Bytes(int64(v.mem.Used)), format.Bytes(int64(v.mem.Total)), int(v.ramPct()))
	sb.WriteString("   Available: " + format.Bytes(int64(v.mem.Available)))
	if v.mem.SwapTotal > 0 {
		fmt.Fprintf(&sb, "\n   Swap: %s / %s", format.Bytes(int64(v.mem.SwapUsed)), format.Bytes(int64(v.mem.SwapTotal)))
	}
	return sb.String()
}

func (c *CPURAM) DataPoints() module.DataPoints {
	v := c.view()
	cpu := "N/A"
	if !math.IsNaN(v.usage) {
		cpu = format.Pct(v.usage)
	}
	return module.DataPoints{}.
		Add("cpu.usage", cpu).
		Add("cpu.temp", format.Temp(v.temp)).
		Add("ram.used", format.Bytes(int64(v.mem.Used))).
		Add("ram.total", format.Bytes(int64(v.mem.Total))).
		Add("ram.available", format.Bytes(int64(v.mem.Available))).
		Add("ram.pct", fmt.Sprintf("%d%%", int(v.ramPct())))
}

func (c *CPURAM) CheckAlerts(ctx context.Context) {
	v := c.view()
	if !v.memOK || v.mem.Total == 0 {
		return
	}
	pct := v.ramPct()
	env := c.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.RAMHigh, pct, true, func(float64) (string, string) {
		return "🔴 High RAM Usage", fmt.Sprintf("RAM at %d%%", int(pct))
	})
}

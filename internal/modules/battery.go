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

// defaultDesignMAh is used when the gauge reports no capacity.
const defaultDesignMAh = 4000

var batteryInfo = module.Info{
	Key:             "battery",
	Name:            "Battery",
	Emoji:           "🔋",
	Description:     "Current, power, temperature, health",
	Priority:        10,
	DefaultEnabled:  true,
	IntervalKey:     "bat_interval",
	DefaultInterval: 10 * time.Second,
}

// Battery reports the power supply and drives the notification title.
type Battery struct {
	module.Base

	mu  sync.Mutex
	bat access.Battery
	ok  bool
}

func NewBattery() *Battery { return &Battery{Base: module.NewBase(batteryInfo)} }

func (b *Battery) Start(env module.Env) {
	b.Begin(env)
	b.sample(context.Background())
}

func (b *Battery) Stop() { b.End() }

func (b *Battery) Tick(ctx context.Context) { b.sample(ctx) }

func (b *Battery) sample(ctx context.Context) {
	h := b.Env().Access
	if h == nil {
		return
	}
	bat, err := h.Battery(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.Log().Debug("battery read failed", "error", err)
		b.ok = false
		return
	}
	b.bat, b.ok = bat, true
}

func (b *Battery) read() (access.Battery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bat, b.ok
}

// BatteryLevel is the last sampled charge in percent.
func (b *Battery) BatteryLevel() (int, bool) {
	bat, ok := b.read()
	if !ok || bat.Level < 0 {
		return 0, false
	}
	return bat.Level, true
}

func (b *Battery) Compact() string {
	bat, ok := b.read()
	if !ok {
		return "🔋" + format.Unavailable
	}
	return fmt.Sprintf("%d%% %s", bat.Level, timeLeft(bat))
}

func (b *Battery) Detail() string {
	bat, ok := b.read()
	if !ok {
		return "🔋 No battery"
	}
	ma := absInt(bat.CurrentMA)
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔋 %d%% • %dmA (%.1fW) • %s\n", bat.Level, ma, watts(bat), format.Temp(bat.TempC))
	if pct, ok := healthPct(bat); ok {
		fmt.Fprintf(&sb, "   Health: %d%% (%d/%d mAh) • %d cycles\n", pct, bat.ChargeFull/1000, bat.DesignFull/1000, bat.CycleCount)
	} else {
		fmt.Fprintf(&sb, "   Health: %s • %.2fV • %s\n", orUnknown(bat.Health), volts(bat), orUnknown(bat.Status))
	}
	if b.Env().Access != nil && b.Env().Access.Tier() == access.Root && bat.Technology != "" {
		fmt.Fprintf(&sb, "   %.2fV • %s • %s\n", volts(bat), bat.Technology, orUnknown(bat.Status))
	}
	sb.WriteString("   ")
	sb.WriteString(timeLeft(bat))
	if bat.Charging {
		sb.WriteString(" • ")
		sb.WriteString(chargeType(bat))
	}
	return sb.String()
}

func (b *Battery) DataPoints() module.DataPoints {
	bat, ok := b.read()
	if !ok {
		return module.DataPoints{}.Add("battery.status", "Unavailable")
	}
	d := module.DataPoints{}.
		Add("battery.level", fmt.Sprintf("%d%%", bat.Level)).
		Add("battery.current", fmt.Sprintf("%d mA", absInt(bat.CurrentMA))).
		Add("battery.power", fmt.Sprintf("%.1f W", watts(bat))).
		Add("battery.temp", format.Temp(bat.TempC)).
		Add("battery.voltage", fmt.Sprintf("%.2fV", volts(bat))).
		Add("battery.health", orUnknown(bat.Health)).
		Add("battery.status", orUnknown(bat.Status)).
		Add("battery.time_left", timeLeft(bat))
	if bat.Charging {
		d = d.Add("battery.charge_type", chargeType(bat))
	}
	if bat.Plug != "" {
		d = d.Add("battery.plug", bat.Plug)
	}
	d = d.Add("battery.design_cap", fmt.Sprintf("%d mAh", designMAh(bat))).
		Add("battery.technology", orDash(bat.Technology))
	if bat.CycleCount > 0 {
		d = d.Add("battery.cycle_count", fmt.Sprint(bat.CycleCount))
	} else {
		d = d.Add("battery.cycle_count", format.Unavailable)
	}
	if pct, ok := healthPct(bat); ok {
		d = d.Add("battery.real_health_pct", fmt.Sprintf("%d%%", pct)).
			Add("battery.actual_cap", fmt.Sprintf("%d mAh", bat.ChargeFull/1000))
	} else {
		d = d.Add("battery.real_health_pct", format.Unavailable).
			Add("battery.actual_cap", format.Unavailable)
	}
	return d
}

func (b *Battery) CheckAlerts(ctx context.Context) {
	bat, ok := b.read()
	if !ok {
		return
	}
	env := b.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.BatteryLow, float64(bat.Level), !bat.Charging, func(float64) (string, string) {
		return "🔴 Battery Low", fmt.Sprintf("Battery at %d%%. Charge your device!", bat.Level)
	})
	if math.IsNaN(bat.TempC) {
		return
	}
	alert.Check(ctx, env.Prefs, env.Alerts, alert.BatteryHot, bat.TempC, true, func(float64) (string, string) {
		return "🔴 High Temperature", fmt.Sprintf("Battery at %s. Let your device cool down!", format.Temp(bat.TempC))
	})
}

func designMAh(bat access.Battery) int64 {
	if bat.DesignFull > 0 {
		return bat.DesignFull / 1000
	}
	return defaultDesignMAh
}

// capacityMAh prefers the measured full charge over the design value.
func capacityMAh(bat access.Battery) float64 {
	if bat.ChargeFull > 0 {
		return float64(bat.ChargeFull) / 1000
	}
	return float64(designMAh(bat))
}

func healthPct(bat access.Battery) (int, bool) {
	if bat.ChargeFull <= 0 || bat.DesignFull <= 0 {
		return 0, false
	}
	return int(bat.ChargeFull * 100 / bat.DesignFull), true
}

func timeLeft(bat access.Battery) string {
	ma := absInt(bat.CurrentMA)
	if ma < 5 {
		return format.Unavailable
	}
	capacity := capacityMAh(bat)
	if bat.Charging {
		need := float64(100-bat.Level) / 100 * capacity
		return "⚡Full in " + hours(need/float64(ma))
	}
	rem := float64(bat.Level) / 100 * capacity
	return hours(rem/float64(ma)) + " left"
}

func hours(h float64) string {
	if h < 0 {
		h = 0
	}
	d := int(h / 24)
	hh := int(math.Mod(h, 24))
	m := int(math.Mod(h*60, 60))
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh", d, hh)
	case hh > 0:
		return fmt.Sprintf("%dh %dm", hh, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

func chargeType(bat access.Battery) string {
	ma := absInt(bat.CurrentMA)
	switch {
	case ma > 3000:
		return "Rapid"
	case ma > 1500:
		return "Fast"
	case ma > 500:
		return "Normal"
	default:
		return "Slow"
	}
}

func watts(bat access.Battery) float64 {
	return float64(absInt(bat.CurrentMA)) * float64(bat.VoltageMV) / 1e6
}

func volts(bat access.Battery) float64 { return float64(bat.VoltageMV) / 1000 }

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return format.Unavailable
	}
	return s
}

package modules

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

const (
	keyUptimeLastBoot = "upt_last_boot"
	keyUptimeReboots  = "upt_reboot_count"

	// bootJitter absorbs drift in the derived boot timestamp.
	bootJitter = time.Minute
)

var uptimeInfo = module.Info{
	Key:             "uptime",
	Name:            "Uptime",
	Emoji:           "⏱",
	Description:     "Device uptime since boot",
	Priority:        95,
	DefaultEnabled:  false,
	IntervalKey:     "upt_interval",
	DefaultInterval: time.Minute,
}

// Uptime counts a reboot whenever the boot time moved by more than a
// minute since the last recorded one.
type Uptime struct {
	module.Base

	mu   sync.Mutex
	boot time.Time
}

func NewUptime() *Uptime { return &Uptime{Base: module.NewBase(uptimeInfo)} }

func (u *Uptime) Start(env module.Env) {
	u.Begin(env)
	if env.Access == nil {
		return
	}
	boot, err := env.Access.BootTime(context.Background())
	if err != nil {
		u.Log().Debug("boot time unavailable", "error", err)
		return
	}
	u.mu.Lock()
	u.boot = boot
	u.mu.Unlock()

	p := env.Prefs
	last := time.UnixMilli(p.GetLong(keyUptimeLastBoot, 0))
	if d := boot.Sub(last); d > bootJitter || d < -bootJitter {
		p.SetMany(map[string]string{
			keyUptimeReboots:  strconv.Itoa(p.GetInt(keyUptimeReboots, 0) + 1),
			keyUptimeLastBoot: strconv.FormatInt(boot.UnixMilli(), 10),
		})
	}
}

func (u *Uptime) Stop() { u.End() }

func (u *Uptime) Tick(context.Context) {}

func (u *Uptime) bootTime() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.boot
}

func (u *Uptime) uptime() string {
	b := u.bootTime()
	if b.IsZero() {
		return format.Unavailable
	}
	return format.Duration(u.Now().Sub(b))
}

func (u *Uptime) bootStr() string {
	b := u.bootTime()
	if b.IsZero() {
		return format.Unavailable
	}
	return b.Local().Format("Jan 02, 15:04")
}

func (u *Uptime) Compact() string { return "⏱" + u.uptime() }

func (u *Uptime) Detail() string {
	return "⏱ Uptime: " + u.uptime() +
		"\n   Last boot: " + u.bootStr() +
		"\n   Reboots tracked: " + strconv.Itoa(u.Env().Prefs.GetInt(keyUptimeReboots, 0))
}

func (u *Uptime) DataPoints() module.DataPoints {
	return module.DataPoints{}.
		Add("uptime.duration", u.uptime()).
		Add("uptime.boot_time", u.bootStr()).
		Add("uptime.reboots", strconv.Itoa(u.Env().Prefs.GetInt(keyUptimeReboots, 0)))
}

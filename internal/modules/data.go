package modules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/access"
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/store"
)

const (
	keyDataDailyTotal  = "dat_daily_total"
	keyDataDailyWiFi   = "dat_daily_wifi"
	keyDataDailyMobile = "dat_daily_mobile"
	keyDataMonthTotal  = "dat_month_total"
	keyDataMonthWiFi   = "dat_month_wifi"
	keyDataMonthMobile = "dat_month_mobile"
	// keyDataPlanLimit is the plan size in MB; 0 means no plan.
	keyDataPlanLimit = "dat_plan_limit"
)

var dataInfo = module.Info{
	Key:             "data",
	Name:            "Data Usage",
	Emoji:           "📊",
	Description:     "Daily & monthly, WiFi & mobile",
	Priority:        50,
	DefaultEnabled:  true,
	IntervalKey:     "dat_interval",
	DefaultInterval: time.Minute,
}

// Data accumulates traffic into persisted daily and billing-cycle
// counters. Mobile traffic is counted on mobile interfaces; everything
// else that is not loopback counts as WiFi. The counters are read back
// from preferences on every tick so resets by the rollover detector are
// picked up without notification.
type Data struct {
	module.Base

	mu         sync.Mutex
	prevTotal  uint64
	prevMobile uint64
	has        bool
}

func NewData() *Data { return &Data{Base: module.NewBase(dataInfo)} }

func (d *Data) Start(env module.Env) {
	d.Begin(env)
	d.mu.Lock()
	d.has = false
	d.mu.Unlock()
	if env.Access == nil {
		return
	}
	if cs, err := env.Access.NetCounters(context.Background()); err == nil {
		total, mobile := splitTraffic(cs)
		d.mu.Lock()
		d.prevTotal, d.prevMobile, d.has = total, mobile, true
		d.mu.Unlock()
	}
}

func (d *Data) Stop() { d.End() }

func (d *Data) Tick(ctx context.Context) {
	h := d.Env().Access
	if h == nil {
		return
	}
	cs, err := h.NetCounters(ctx)
	if err != nil {
		d.Log().Debug("net counters unavailable", "error", err)
		return
	}
	total, mobile := splitTraffic(cs)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.has && total >= d.prevTotal {
		dt := total - d.prevTotal
		dm := delta(mobile, d.prevMobile)
		dw := uint64(0)
		if dt > dm {
			dw = dt - dm
		}
		if dt > 0 {
			d.add(int64(dt), int64(dw), int64(dm))
		}
	}
	d.prevTotal, d.prevMobile, d.has = total, mobile, true
}

func (d *Data) add(total, wifi, mobile int64) {
	p := d.Env().Prefs
	inc := func(key string, v int64) string {
		return strconv.FormatInt(p.GetLong(key, 0)+v, 10)
	}
	p.SetMany(map[string]string{
		keyDataDailyTotal:  inc(keyDataDailyTotal, total),
		keyDataDailyWiFi:   inc(keyDataDailyWiFi, wifi),
		keyDataDailyMobile: inc(keyDataDailyMobile, mobile),
		keyDataMonthTotal:  inc(keyDataMonthTotal, total),
		keyDataMonthWiFi:   inc(keyDataMonthWiFi, wifi),
		keyDataMonthMobile: inc(keyDataMonthMobile, mobile),
	})
}

// splitTraffic returns rx+tx over non-loopback interfaces and the mobile share.
func splitTraffic(cs []access.NetCounter) (total, mobile uint64) {
	for _, c := range cs {
		switch access.Classify(c.Name) {
		case access.KindLoopback:
			continue
		case access.KindMobile:
			mobile += c.RxBytes + c.TxBytes
		}
		total += c.RxBytes + c.TxBytes
	}
	return total, mobile
}

type dataView struct {
	dailyTotal, dailyWiFi, dailyMobile int64
	monthTotal, monthWiFi, monthMobile int64
	planBytes                          int64
}

func readDataView(p *store.Prefs) dataView {
	return dataView{
		dailyTotal:  p.GetLong(keyDataDailyTotal, 0),
		dailyWiFi:   p.GetLong(keyDataDailyWiFi, 0),
		dailyMobile: p.GetLong(keyDataDailyMobile, 0),
		monthTotal:  p.GetLong(keyDataMonthTotal, 0),
		monthWiFi:   p.GetLong(keyDataMonthWiFi, 0),
		monthMobile: p.GetLong(keyDataMonthMobile, 0),
		planBytes:   p.GetLong(keyDataPlanLimit, 0) * 1024 * 1024,
	}
}

func (v dataView) planPct() float64 {
	if v.planBytes <= 0 {
		return 0
	}
	return float64(v.monthTotal) * 100 / float64(v.planBytes)
}

func (d *Data) Compact() string {
	v := readDataView(d.Env().Prefs)
	return "Today:" + format.Bytes(v.dailyTotal)
}

func (d *Data) Detail() string {
	p := d.Env().Prefs
	v := readDataView(p)
	var sb strings.Builder
	if p.GetBool("dat_show_breakdown", true) {
		fmt.Fprintf(&sb, "📊 Today: %s (W:%s M:%s)\n", format.Bytes(v.dailyTotal), format.Bytes(v.dailyWiFi), format.Bytes(v.dailyMobile))
	} else {
		fmt.Fprintf(&sb, "📊 Today: %s\n", format.Bytes(v.dailyTotal))
	}
	sb.WriteString("   Month: " + format.Bytes(v.monthTotal))
	if v.planBytes > 0 {
		fmt.Fprintf(&sb, " / %s (%.1f%%)", format.Bytes(v.planBytes), v.planPct())
	}
	return sb.String()
}

func (d *Data) DataPoints() module.DataPoints {
	v := readDataView(d.Env().Prefs)
	dp := module.DataPoints{}.
		Add("data.today_total", format.Bytes(v.dailyTotal)).
		Add("data.today_wifi", format.Bytes(v.dailyWiFi)).
		Add("data.today_mobile", format.Bytes(v.dailyMobile)).
		Add("data.month_total", format.Bytes(v.monthTotal)).
		Add("data.month_wifi", format.Bytes(v.monthWiFi)).
		Add("data.month_mobile", format.Bytes(v.monthMobile))
	if v.planBytes > 0 {
		dp = dp.Add("data.plan_used", format.Pct(v.planPct()))
	}
	return dp
}

// CheckAlerts fires once per billing cycle when the plan share crosses
// dat_plan_alert_pct. Without a plan nothing fires.
func (d *Data) CheckAlerts(ctx context.Context) {
	env := d.Env()
	v := readDataView(env.Prefs)
	pct := v.planPct()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.DataPlan, pct, v.planBytes > 0, func(float64) (string, string) {
		return "⚠️ Data Plan Warning", fmt.Sprintf("Used %.0f%% of %s plan", pct, format.Bytes(v.planBytes))
	})
}

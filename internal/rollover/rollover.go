// Package rollover resets daily and monthly counters when the calendar
// moves forward. Markers are persisted so a restart mid-day does nothing.
package rollover

import (
	"log/slog"
	"time"

	"github.com/loykin/extbox/internal/metrics"
	"github.com/loykin/extbox/internal/store"
)

const (
	KeyDay   = "rollover_day"
	KeyMonth = "rollover_month"
	KeyYear  = "rollover_year"
	// keyMonthYear is the year the month marker belongs to.
	keyMonthYear = "rollover_month_year"
)

// Kind of counter value, which decides the int/long preference accessor.
type Kind int

const (
	Int Kind = iota
	Long
)

// Copy moves a counter into its "previous period" slot and zeroes it.
type Copy struct {
	From string
	To   string
	Kind Kind
}

// Hook runs with the counters still holding the closing period's values.
type Hook func(p *store.Prefs)

// Plan lists the counter families touched by each rollover.
type Plan struct {
	DailyHooks  []Hook
	DailyCopies []Copy
	DailyZero   []string
	DailyFlags  []string

	MonthlyHooks  []Hook
	MonthlyCopies []Copy
	MonthlyZero   []string
	MonthlyFlags  []string

	Billing *Billing
}

// Result tells the caller which boundaries were crossed.
type Result struct {
	Day     bool
	Month   bool
	Billing bool
}

func (r Result) Any() bool { return r.Day || r.Month || r.Billing }

// Detector compares the wall clock against persisted markers.
type Detector struct {
	prefs *store.Prefs
	plan  Plan
	log   *slog.Logger
}

func New(p *store.Prefs, plan Plan, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{prefs: p, plan: plan, log: log.With("component", "rollover")}
}

// Check applies any due rollover for the wall time now, day before month.
// A clock that moved backwards never triggers a rollover and leaves the
// markers untouched.
func (d *Detector) Check(now time.Time) Result {
	var res Result
	p := d.prefs
	year, yday, month := now.Year(), now.YearDay(), int(now.Month())

	lastDay := p.GetInt(KeyDay, -1)
	lastYear := p.GetInt(KeyYear, -1)
	if lastDay == -1 || lastYear == -1 {
		p.SetMany(map[string]string{
			KeyDay: itoa(yday), KeyYear: itoa(year),
			KeyMonth: itoa(month), keyMonthYear: itoa(year),
		})
		res.Billing = d.checkBilling(now)
		return res
	}

	switch cmp(year, yday, lastYear, lastDay) {
	case 1:
		d.dayRollover()
		p.SetMany(map[string]string{KeyDay: itoa(yday), KeyYear: itoa(year)})
		res.Day = true
	case -1:
		d.log.Warn("clock moved backwards, rollover skipped",
			"now", now.Format(time.DateOnly), "marker_year", lastYear, "marker_day", lastDay)
		return res
	}

	lastMonth := p.GetInt(KeyMonth, -1)
	lastMonthYear := p.GetInt(keyMonthYear, lastYear)
	if lastMonth == -1 {
		p.SetMany(map[string]string{KeyMonth: itoa(month), keyMonthYear: itoa(year)})
	} else if cmp(year, month, lastMonthYear, lastMonth) > 0 {
		d.monthRollover()
		p.SetMany(map[string]string{KeyMonth: itoa(month), keyMonthYear: itoa(year)})
		res.Month = true
	}

	res.Billing = d.checkBilling(now)
	return res
}

func (d *Detector) dayRollover() {
	d.log.Info("day rollover")
	metrics.IncRollover("day")
	d.apply(d.plan.DailyHooks, d.plan.DailyCopies, d.plan.DailyZero, d.plan.DailyFlags)
}

func (d *Detector) monthRollover() {
	d.log.Info("month rollover")
	metrics.IncRollover("month")
	d.apply(d.plan.MonthlyHooks, d.plan.MonthlyCopies, d.plan.MonthlyZero, d.plan.MonthlyFlags)
}

func (d *Detector) apply(hooks []Hook, copies []Copy, zero, flags []string) {
	p := d.prefs
	for _, h := range hooks {
		h(p)
	}
	kv := map[string]string{}
	for _, c := range copies {
		if c.Kind == Long {
			kv[c.To] = i64toa(p.GetLong(c.From, 0))
		} else {
			kv[c.To] = itoa(p.GetInt(c.From, 0))
		}
		kv[c.From] = "0"
	}
	for _, k := range zero {
		kv[k] = "0"
	}
	for _, k := range flags {
		kv[k] = "false"
	}
	p.SetMany(kv)
}

func (d *Detector) checkBilling(now time.Time) bool {
	if d.plan.Billing == nil {
		return false
	}
	if !d.plan.Billing.Check(d.prefs, now) {
		return false
	}
	d.log.Info("billing cycle rollover", "day", d.plan.Billing.Day(d.prefs, now))
	metrics.IncRollover("billing")
	return true
}

// cmp orders (a1, a2) against (b1, b2) lexicographically.
func cmp(a1, a2, b1, b2 int) int {
	switch {
	case a1 > b1, a1 == b1 && a2 > b2:
		return 1
	case a1 < b1, a1 == b1 && a2 < b2:
		return -1
	}
	return 0
}

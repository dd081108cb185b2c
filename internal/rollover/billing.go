package rollover

import (
	"strconv"
	"time"

	"github.com/loykin/extbox/internal/store"
)

// Billing resets data-plan counters at the start of each billing period.
//
// The period starts on DayKey's day of month, clamped to the month's last
// day so a billing day of 31 still rolls over in February. The period start
// is persisted as YYYYMMDD, so a day missed while the daemon was down is
// caught up on the next check.
type Billing struct {
	DayKey     string
	DefaultDay int
	PeriodKey  string
	// LastBillKey keeps the day-of-year of the last reset.
	LastBillKey string
	Zero        []string
	Flags       []string
}

func (b *Billing) Day(p *store.Prefs, now time.Time) int {
	return clampDay(p.GetInt(b.DayKey, b.DefaultDay), now.Year(), now.Month())
}

// PeriodStart returns the most recent billing day on or before now.
func (b *Billing) PeriodStart(p *store.Prefs, now time.Time) time.Time {
	want := p.GetInt(b.DayKey, b.DefaultDay)
	y, m := now.Year(), now.Month()
	day := clampDay(want, y, m)
	if now.Day() < day {
		prev := time.Date(y, m, 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		y, m = prev.Year(), prev.Month()
		day = clampDay(want, y, m)
	}
	return time.Date(y, m, day, 0, 0, 0, 0, now.Location())
}

// Check resets the counters when a new period has started since the last
// recorded one. The first call only records the current period.
func (b *Billing) Check(p *store.Prefs, now time.Time) bool {
	start := b.PeriodStart(p, now)
	cur := stamp(start)
	last := p.GetLong(b.PeriodKey, -1)
	if last == -1 {
		p.SetLong(b.PeriodKey, cur)
		return false
	}
	if cur <= last {
		return false
	}
	kv := map[string]string{
		b.PeriodKey: i64toa(cur),
	}
	if b.LastBillKey != "" {
		kv[b.LastBillKey] = itoa(now.YearDay())
	}
	for _, k := range b.Zero {
		kv[k] = "0"
	}
	for _, k := range b.Flags {
		kv[k] = "false"
	}
	p.SetMany(kv)
	return true
}

func clampDay(day, year int, month time.Month) int {
	last := daysIn(year, month)
	switch {
	case day < 1:
		return 1
	case day > last:
		return last
	}
	return day
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func stamp(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

func itoa(n int) string     { return strconv.Itoa(n) }
func i64toa(n int64) string { return strconv.FormatInt(n, 10) }

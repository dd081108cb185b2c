// Package summary raises the end-of-day recap alert.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/clock"
	"github.com/loykin/extbox/internal/cron"
	"github.com/loykin/extbox/internal/format"
)

const (
	AlertID         = "summary.night"
	JobName         = "night-summary"
	DefaultSchedule = "0 23 * * *"

	keyEnabled = "notif_night_summary"
)

// Prefs is the subset of the preference store the summary reads.
type Prefs interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
	GetLong(key string, def int64) int64
}

// Summary builds the recap from persisted daily counters.
type Summary struct {
	prefs    Prefs
	notifier alert.Notifier
	clock    clock.Clock
}

func New(p Prefs, n alert.Notifier, c clock.Clock) *Summary {
	if c == nil {
		c = clock.Real{}
	}
	if n == nil {
		n = alert.Nop
	}
	return &Summary{prefs: p, notifier: n, clock: c}
}

// Body renders the recap text.
func (s *Summary) Body() string {
	p := s.prefs
	unlocks := p.GetInt("ulk_today", 0)
	screen := time.Duration(p.GetLong("scr_on_acc", 0)) * time.Millisecond
	steps := p.GetLong("stp_today", 0)
	faps := p.GetInt("fap_today", 0)

	mins := int(screen / time.Minute)
	var sb strings.Builder
	fmt.Fprintf(&sb, "📱 Screen: %dh %dm", mins/60, mins%60)
	fmt.Fprintf(&sb, "  •  🔓 %d unlocks", unlocks)
	if steps > 0 {
		fmt.Fprintf(&sb, "  •  👣 %s steps", format.Number(steps))
	}
	if faps > 0 {
		fmt.Fprintf(&sb, "  •  🍆 %d", faps)
	}
	if yd := p.GetInt("ulk_yesterday", 0); yd > 0 {
		diff := unlocks - yd
		pct := diff * 100 / yd
		if pct < 0 {
			pct = -pct
		}
		switch {
		case diff < 0:
			fmt.Fprintf(&sb, "\n🎉 %d%% fewer unlocks than yesterday!", pct)
		case diff > 0:
			fmt.Fprintf(&sb, "\n📈 %d%% more unlocks than yesterday", pct)
		}
	}
	return sb.String()
}

// Send raises the summary alert unless notif_night_summary is off.
func (s *Summary) Send(ctx context.Context) bool {
	if !s.prefs.GetBool(keyEnabled, true) {
		return false
	}
	s.notifier.Raise(ctx, alert.Alert{
		ID:    AlertID,
		Title: "🌙 Daily Summary",
		Body:  s.Body(),
		At:    s.clock.Now(),
	})
	return true
}

// Job wraps Send for the housekeeping scheduler. An empty schedule
// selects DefaultSchedule.
func (s *Summary) Job(schedule string) *cron.Job {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &cron.Job{
		Name:     JobName,
		Schedule: schedule,
		Run:      func(ctx context.Context) { s.Send(ctx) },
	}
}

package rollover

import (
	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/store"
)

// DataMonthKeys are the billing-cycle data counters.
var DataMonthKeys = []string{"dat_month_total", "dat_month_wifi", "dat_month_mobile"}

// DefaultPlan is the counter layout used by the built-in modules.
//
// Calendar month rollover does not touch the data counters; those follow
// the billing cycle.
func DefaultPlan() Plan {
	return Plan{
		DailyHooks: []Hook{fapStreak},
		DailyCopies: []Copy{
			{From: "ulk_today", To: "ulk_yesterday", Kind: Int},
			{From: "stp_today", To: "stp_yesterday", Kind: Long},
			{From: "scr_on_acc", To: "scr_yesterday_on", Kind: Long},
			{From: "fap_today", To: "fap_yesterday", Kind: Int},
		},
		DailyZero:  []string{"dat_daily_total", "dat_daily_wifi", "dat_daily_mobile", "scr_off_acc"},
		DailyFlags: alert.DailyFlags,

		MonthlyCopies: []Copy{
			{From: "fap_monthly", To: "fap_prev_monthly", Kind: Int},
		},

		Billing: &Billing{
			DayKey:      "dat_billing_day",
			DefaultDay:  1,
			PeriodKey:   "dat_bill_period",
			LastBillKey: "dat_last_bill",
			Zero:        DataMonthKeys,
			Flags:       []string{alert.DataPlan.FlagKey},
		},
	}
}

// fapStreak extends the clean streak when the closing day had no events.
func fapStreak(p *store.Prefs) {
	if p.GetInt("fap_today", 0) == 0 {
		p.SetInt("fap_streak", p.GetInt("fap_streak", 0)+1)
	}
}

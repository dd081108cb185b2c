package alert

// Alert identifiers.
const (
	IDBatteryLow   = "battery.low"
	IDBatteryHot   = "battery.hot"
	IDRAMHigh      = "cpu_ram.ram_high"
	IDScreenLimit  = "screen.limit"
	IDDataPlan     = "data.plan"
	IDUnlockLimit  = "unlock.limit"
	IDStorageLow   = "storage.low"
	IDStepGoal     = "steps.goal"
	IDFapLimit     = "fap.limit"
	IDNightSummary = "summary.night"
)

var (
	BatteryLow = Rule{
		ID: IDBatteryLow, Module: "battery", FlagKey: "bat_low_fired",
		EnabledKey: "bat_low_alert", EnabledDefault: true,
		ThresholdKey: "bat_low_thresh", ThresholdDefault: 15,
		Direction: Below, ResetMargin: 5,
	}
	BatteryHot = Rule{
		ID: IDBatteryHot, Module: "battery", FlagKey: "bat_temp_fired",
		EnabledKey: "bat_temp_alert", EnabledDefault: true,
		ThresholdKey: "bat_temp_thresh", ThresholdDefault: 42,
		Direction: Above, ResetMargin: 3,
	}
	RAMHigh = Rule{
		ID: IDRAMHigh, Module: "cpu_ram", FlagKey: "cpu_ram_alert_fired",
		EnabledKey: "cpu_ram_alert", EnabledDefault: false,
		ThresholdKey: "cpu_ram_thresh", ThresholdDefault: 90,
		Direction: Above, ResetMargin: 5,
	}
	// StorageLow thresholds are in MB of free space.
	StorageLow = Rule{
		ID: IDStorageLow, Module: "storage", FlagKey: "sto_low_alert_fired",
		EnabledKey: "sto_low_alert", EnabledDefault: true,
		ThresholdKey: "sto_low_thresh_mb", ThresholdDefault: 1000,
		Direction: Below, ResetMargin: 500,
	}
	// DataPlan compares the percentage of the plan used; the billing
	// rollover clears it.
	DataPlan = Rule{
		ID: IDDataPlan, Module: "data", FlagKey: "dat_plan_alert_fired",
		ThresholdKey: "dat_plan_alert_pct", ThresholdDefault: 90,
		Direction: Above, Latching: true,
	}
	ScreenLimit = Rule{
		ID: IDScreenLimit, Module: "screen", FlagKey: "scr_alert_fired",
		ThresholdKey: "scr_time_limit", ThresholdDefault: 0,
		Direction: Above, Latching: true, DisabledAtZero: true,
	}
	UnlockLimit = Rule{
		ID: IDUnlockLimit, Module: "unlock", FlagKey: "ulk_alert_fired",
		EnabledKey: "ulk_limit_alert", EnabledDefault: true,
		ThresholdKey: "ulk_daily_limit", ThresholdDefault: 0,
		Direction: Above, Latching: true, DisabledAtZero: true,
	}
	StepGoal = Rule{
		ID: IDStepGoal, Module: "steps", FlagKey: "stp_goal_fired",
		ThresholdKey: "stp_goal", ThresholdDefault: 10000,
		Direction: Above, Latching: true, DisabledAtZero: true,
	}
	FapLimit = Rule{
		ID: IDFapLimit, Module: "fap", FlagKey: "fap_limit_fired",
		ThresholdKey: "fap_daily_limit", ThresholdDefault: 0,
		Direction: Above, Latching: true, DisabledAtZero: true,
	}
)

// DailyFlags are cleared by the day rollover.
var DailyFlags = []string{
	UnlockLimit.FlagKey, StepGoal.FlagKey, ScreenLimit.FlagKey, FapLimit.FlagKey,
}

package modules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/format"
	"github.com/loykin/extbox/internal/module"
)

const (
	keyStepsToday     = "stp_today"
	keyStepsYesterday = "stp_yesterday"
	keyStepsGoal      = "stp_goal"
	keyStepsStride    = "stp_stride_cm"

	defaultStepGoal   = 10000
	defaultStrideCM   = 75
	maxStepDelta      = 5000
	stepsNotAvailable = "👣N/A"
)

var stepsInfo = module.Info{
	Key:             "steps",
	Name:            "Step Counter",
	Emoji:           "👣",
	Description:     "Steps and distance",
	Priority:        70,
	DefaultEnabled:  false,
	IntervalKey:     "stp_interval",
	DefaultInterval: 10 * time.Second,
}

// Steps turns a cumulative hardware step counter into a daily count.
// Readings that jump backwards or by maxStepDelta or more are treated as a
// sensor reset and only re-anchor the baseline.
type Steps struct {
	module.Base

	mu      sync.Mutex
	lastRaw float64
	hasRaw  bool
	today   int64
	sensor  bool
	fed     bool // a reading arrived, whatever the host reports
}

func NewSteps() *Steps { return &Steps{Base: module.NewBase(stepsInfo)} }

func (s *Steps) Start(env module.Env) {
	s.Begin(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.today = env.Prefs.GetLong(keyStepsToday, 0)
	s.hasRaw, s.fed = false, false
	s.sensor = env.Access != nil && env.Access.StepSensor()
}

func (s *Steps) Stop() { s.End() }

// Tick re-checks sensor availability and picks up external edits.
func (s *Steps) Tick(context.Context) {
	env := s.Env()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensor = s.fed || (env.Access != nil && env.Access.StepSensor())
	s.today = env.Prefs.GetLong(keyStepsToday, 0)
}

// OnStepCounter feeds a cumulative counter reading. It reports the number
// of steps added.
func (s *Steps) OnStepCounter(raw float64) int64 {
	if !s.Alive() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensor, s.fed = true, true
	var added int64
	if s.hasRaw {
		if d := raw - s.lastRaw; d > 0 && d < maxStepDelta {
			added = int64(d)
			p := s.Env().Prefs
			s.today = p.GetLong(keyStepsToday, 0) + added
			p.SetLong(keyStepsToday, s.today)
		}
	}
	s.lastRaw, s.hasRaw = raw, true
	return added
}

func (s *Steps) OnDayRollover() {
	s.mu.Lock()
	s.today = s.Env().Prefs.GetLong(keyStepsToday, 0)
	s.mu.Unlock()
}

func (s *Steps) OnMonthRollover() {}

func (s *Steps) read() (today int64, sensor bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.today, s.sensor
}

func (s *Steps) km(today int64) float64 {
	stride := s.Env().Prefs.GetLong(keyStepsStride, defaultStrideCM)
	return float64(today*stride) / 100000
}

func (s *Steps) Compact() string {
	today, sensor := s.read()
	if !sensor {
		return stepsNotAvailable
	}
	return "👣" + format.Number(today)
}

func (s *Steps) Detail() string {
	today, sensor := s.read()
	if !sensor {
		return "👣 Step sensor not available"
	}
	p := s.Env().Prefs
	goal := p.GetLong(keyStepsGoal, defaultStepGoal)
	var sb strings.Builder
	if goal > 0 && p.GetBool("stp_show_goal", true) {
		fmt.Fprintf(&sb, "👣 Steps: %s / %s (%.0f%%)\n", format.Number(today), format.Number(goal), float64(today)*100/float64(goal))
	} else {
		fmt.Fprintf(&sb, "👣 Steps: %s\n", format.Number(today))
	}
	if p.GetBool("stp_show_distance", true) {
		fmt.Fprintf(&sb, "   Distance: %.1f km", s.km(today))
	}
	if p.GetBool("stp_show_yesterday", true) {
		if y := p.GetLong(keyStepsYesterday, 0); y > 0 {
			fmt.Fprintf(&sb, "\n   Yesterday: %s (%s)", format.Number(y), stepsVs(today, y))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func stepsVs(today, y int64) string {
	if d := today - y; d > 0 {
		return "↑" + format.Number(d)
	}
	return "↓" + format.Number(y-today)
}

func (s *Steps) DataPoints() module.DataPoints {
	today, sensor := s.read()
	if !sensor {
		return module.DataPoints{}.Add("steps.status", "Sensor not available")
	}
	p := s.Env().Prefs
	d := module.DataPoints{}.
		Add("steps.today", format.Number(today)).
		Add("steps.distance", fmt.Sprintf("%.1f km", s.km(today)))
	if goal := p.GetLong(keyStepsGoal, defaultStepGoal); goal > 0 {
		d = d.Add("steps.goal", format.Number(goal))
	}
	if y := p.GetLong(keyStepsYesterday, 0); y > 0 {
		d = d.Add("steps.yesterday", format.Number(y)).
			Add("steps.vs_yesterday", stepsVs(today, y))
	}
	return d
}

func (s *Steps) CheckAlerts(ctx context.Context) {
	today, sensor := s.read()
	env := s.Env()
	alert.Check(ctx, env.Prefs, env.Alerts, alert.StepGoal, float64(today), sensor, func(float64) (string, string) {
		return "🎉 Step Goal Reached!", format.Number(today) + " steps today!"
	})
}

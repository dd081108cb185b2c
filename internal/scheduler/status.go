package scheduler

import (
	"time"

	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/registry"
)

// ModuleStatus describes one catalog entry.
type ModuleStatus struct {
	module.Info
	Enabled  bool          `json:"enabled"`
	Alive    bool          `json:"alive"`
	LastTick *time.Time    `json:"last_tick,omitempty"`
	Interval time.Duration `json:"interval"`
}

type Status struct {
	Running   bool           `json:"running"`
	Swept     bool           `json:"swept"`
	LastSweep time.Time      `json:"last_sweep"`
	NextDelay time.Duration  `json:"next_delay"`
	Alive     []string       `json:"alive"`
	Modules   []ModuleStatus `json:"modules"`
}

func (s *Scheduler) Status() Status {
	s.life.Lock()
	running := s.running != nil && !s.closed.Load()
	s.life.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:   running,
		Swept:     s.swept,
		LastSweep: s.lastSweep,
		NextDelay: s.nextDelay,
		Alive:     []string{},
	}
	for _, e := range s.reg.Entries() {
		ms := ModuleStatus{
			Info:     e.Info,
			Enabled:  s.env.Prefs.ModuleEnabled(e.Key, e.DefaultEnabled),
			Interval: e.DefaultInterval,
		}
		if e.IntervalKey != "" {
			ms.Interval = time.Duration(s.env.Prefs.GetLong(e.IntervalKey, e.DefaultInterval.Milliseconds())) * time.Millisecond
		}
		if in, ok := s.inst[e.Key]; ok && in.mod.Alive() {
			ms.Alive = true
			st.Alive = append(st.Alive, e.Key)
			if in.ticked {
				t := in.lastTick
				ms.LastTick = &t
			}
		}
		st.Modules = append(st.Modules, ms)
	}
	return st
}

// NextDelay is the delay computed by the last sweep.
func (s *Scheduler) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDelay
}

// Module returns the running instance for key.
func (s *Scheduler) Module(key string) (module.Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.inst[key]
	if !ok || !in.mod.Alive() {
		return nil, false
	}
	return in.mod, true
}

// Alive lists running instances in catalog order.
func (s *Scheduler) Alive() []module.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked()
}

func (s *Scheduler) aliveLocked() []module.Module {
	var out []module.Module
	for _, e := range s.reg.Entries() {
		if in, ok := s.inst[e.Key]; ok && in.mod.Alive() {
			out = append(out, in.mod)
		}
	}
	return out
}

// Registry is the catalog the scheduler was built with.
func (s *Scheduler) Registry() *registry.Registry { return s.reg }

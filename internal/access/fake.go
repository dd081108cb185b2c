package access

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Handle for tests and for hosts fed entirely by
// external events.
type Fake struct {
	mu sync.Mutex

	TierV     Tier
	Bat       Battery
	BatErr    error
	CPUS      CPUSample
	Temp      float64
	Mem       Memory
	DiskV     Disk
	Counters  []NetCounter
	Ifaces    []Interface
	Signal    map[string]int
	Boot      time.Time
	ClocksV   Clocks
	ClocksErr error
	Steps     bool
	Speed     SpeedTestConfig
}

func NewFake() *Fake {
	return &Fake{
		Temp:  NaN,
		Boot:  time.Now().Add(-time.Hour),
		Speed: DefaultSpeedTest(),
	}
}

// Update mutates the fake under its lock.
func (f *Fake) Update(fn func(f *Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *Fake) Tier() Tier {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.TierV
}

func (f *Fake) Battery(context.Context) (Battery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Bat, f.BatErr
}

func (f *Fake) CPU(context.Context) (CPUSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CPUS, nil
}

func (f *Fake) CPUTemp(context.Context) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Temp
}

func (f *Fake) Memory(context.Context) (Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Mem, nil
}

func (f *Fake) Storage(context.Context) (Disk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DiskV, nil
}

func (f *Fake) NetCounters(context.Context) ([]NetCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NetCounter(nil), f.Counters...), nil
}

func (f *Fake) Interfaces(context.Context) ([]Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Interface(nil), f.Ifaces...), nil
}

func (f *Fake) WirelessSignal(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.Signal))
	for k, v := range f.Signal {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) BootTime(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Boot, nil
}

func (f *Fake) Clocks() (Clocks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ClocksV, f.ClocksErr
}

func (f *Fake) StepSensor() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Steps
}

func (f *Fake) SpeedTest() SpeedTestConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Speed
}

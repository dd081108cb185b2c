// Package modules holds the built-in telemetry modules.
package modules

import (
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/registry"
)

// Catalog returns the built-in modules. prober is used by the speed test;
// nil selects the HTTP prober.
func Catalog(prober Prober) *registry.Registry {
	return registry.MustNew(
		entry(batteryInfo, func() module.Module { return NewBattery() }),
		entry(cpuRAMInfo, func() module.Module { return NewCPURAM() }),
		entry(screenInfo, func() module.Module { return NewScreen() }),
		entry(sleepInfo, func() module.Module { return NewSleep() }),
		entry(networkInfo, func() module.Module { return NewNetwork() }),
		entry(dataInfo, func() module.Module { return NewData() }),
		entry(unlockInfo, func() module.Module { return NewUnlock() }),
		entry(stepsInfo, func() module.Module { return NewSteps() }),
		entry(speedTestInfo, func() module.Module { return NewSpeedTest(prober) }),
		entry(storageInfo, func() module.Module { return NewStorage() }),
		entry(connectionInfo, func() module.Module { return NewConnection() }),
		entry(uptimeInfo, func() module.Module { return NewUptime() }),
		entry(fapInfo, func() module.Module { return NewFap() }),
	)
}

func entry(info module.Info, fn func() module.Module) registry.Entry {
	return registry.Entry{Info: info, New: fn}
}
